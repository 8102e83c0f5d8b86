package main

import (
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	scan2pdf "github.com/denysvitali/scan2pdf"
	"github.com/denysvitali/scan2pdf/pkg/acquire"
	"github.com/denysvitali/scan2pdf/pkg/batch"
	"github.com/denysvitali/scan2pdf/pkg/cli"
	"github.com/denysvitali/scan2pdf/pkg/logutils"
	"github.com/denysvitali/scan2pdf/pkg/storage"
)

var args struct {
	cli.ScannerArgs
	cli.StorageArgs
	ListenAddr  string `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	SavePath    string `arg:"--save-path,env:SCAN2PDF_SAVE_PATH" help:"Save path suggested by the UI, defaults to the working directory"`
	Retries     int    `arg:"--retries,env:SCAN2PDF_RETRIES" default:"3"`
	MaxPages    int    `arg:"--max-pages,env:SCAN2PDF_MAX_PAGES"`
	CheckFeeder bool   `arg:"--check-feeder,env:SCAN2PDF_CHECK_FEEDER"`
	Upload      bool   `arg:"--upload,env:SCAN2PDF_UPLOAD"`
	LogHistory  int    `arg:"--log-history" default:"500" help:"Log lines replayed to a newly opened UI"`
	LogLevel    string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
}

var log = logrus.StandardLogger()

func main() {
	if err := cli.LoadDotEnv(); err != nil {
		log.Fatalf("unable to load .env: %v", err)
	}
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	sink := logutils.InstallSink(args.LogHistory)

	registry, err := cli.NewRegistry(args.ScannerArgs)
	if err != nil {
		log.Fatalf("create scanner registry: %v", err)
	}
	selectedStorage, err := storage.Setup(args.StorageType, args.FsPath, args.B2Config())
	if err != nil {
		log.Fatalf("setup storage: %v", err)
	}
	config := batch.Config{
		Devices:     registry,
		Retries:     args.Retries,
		MaxPages:    args.MaxPages,
		CheckFeeder: args.CheckFeeder,
	}
	if selectedStorage != nil {
		config.Archive = selectedStorage
		if args.Upload {
			config.Upload = selectedStorage
		}
	}

	savePath := args.SavePath
	if savePath == "" {
		if savePath, err = os.Getwd(); err != nil {
			log.Fatalf("get working directory: %v", err)
		}
	}

	opts := []scan2pdf.Option{scan2pdf.WithDefaults(savePath, acquire.DefaultWaitTime)}
	if selectedStorage != nil {
		opts = append(opts, scan2pdf.WithArchive(selectedStorage))
	}
	s := scan2pdf.New(registry, batch.New(config), sink, opts...)
	if err := s.Run(args.ListenAddr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
