package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/acquire"
	"github.com/denysvitali/scan2pdf/pkg/batch"
	"github.com/denysvitali/scan2pdf/pkg/cli"
	"github.com/denysvitali/scan2pdf/pkg/logutils"
	"github.com/denysvitali/scan2pdf/pkg/storage"
)

var args struct {
	cli.ScannerArgs
	cli.StorageArgs
	List        bool          `arg:"-l,--list" help:"List the available scanners and exit"`
	Device      string        `arg:"-d,--device,env:SCAN2PDF_DEVICE" help:"Device id as printed by --list"`
	OutputDir   string        `arg:"-o,--output-dir,env:SCAN2PDF_OUTPUT_DIR" help:"Existing directory where the PDF is saved"`
	FileName    string        `arg:"-f,--file-name,env:SCAN2PDF_FILE_NAME" help:"Name of the PDF file"`
	WaitTime    time.Duration `arg:"-w,--wait-time,env:SCAN2PDF_WAIT_TIME" default:"5s" help:"Pause between two pages"`
	Retries     int           `arg:"--retries,env:SCAN2PDF_RETRIES" default:"3" help:"Retries when the scanner reports a temporary error"`
	MaxPages    int           `arg:"--max-pages,env:SCAN2PDF_MAX_PAGES" help:"Stop after this many pages, 0 for no limit"`
	CheckFeeder bool          `arg:"--check-feeder,env:SCAN2PDF_CHECK_FEEDER" help:"Ask the scanner whether paper is loaded before each page"`
	Upload      bool          `arg:"--upload,env:SCAN2PDF_UPLOAD" help:"Also store the finished PDF in the configured storage"`
	LogLevel    string        `arg:"--log-level,env:LOG_LEVEL" default:"info"`
}

var log = logrus.StandardLogger()

func main() {
	if err := cli.LoadDotEnv(); err != nil {
		log.Fatalf("unable to load .env: %v", err)
	}
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("unable to fill keychain values: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	registry, err := cli.NewRegistry(args.ScannerArgs)
	if err != nil {
		log.Fatalf("unable to create scanner registry: %v", err)
	}

	if args.List {
		scanners, err := registry.List(ctx)
		if err != nil {
			log.Fatalf("unable to list scanners: %v", err)
		}
		for _, s := range scanners {
			fmt.Printf("%s\t%s\n", s.DeviceID, s)
		}
		return
	}

	selectedStorage, err := storage.Setup(args.StorageType, args.FsPath, args.B2Config())
	if err != nil {
		log.Fatalf("unable to setup storage: %v", err)
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
	} else if args.Upload {
		log.Fatalf("--upload requires --storage-type")
	}

	res, err := batch.New(config).Run(ctx, batch.Request{
		DeviceID:  args.Device,
		OutputDir: args.OutputDir,
		FileName:  args.FileName,
		WaitTime:  args.WaitTime,
	})
	if err != nil {
		if errors.Is(err, acquire.ErrNoDeviceSelected) {
			log.Fatalf("no scanner selected, use --list and --device")
		}
		log.Fatalf("scan failed: %v", err)
	}

	log.Infof("PDF saved at %s (%d pages)", res.Path, res.Pages)
	if res.UploadedTo != "" {
		log.Infof("PDF uploaded to %s", res.UploadedTo)
	}
	if res.Aborted {
		log.Errorf("the scan stopped early: %s", res.AbortReason)
		os.Exit(2)
	}
}
