package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/cli"
	"github.com/denysvitali/scan2pdf/pkg/crypt"
	"github.com/denysvitali/scan2pdf/pkg/storage"
)

var args struct {
	cli.StorageArgs
	Passphrase string `arg:"--passphrase,env:PASSPHRASE" help:"Passphrase used when storing, keychain:<element> is supported"`
	Document   string `arg:"--document" help:"Fetch a PDF from the storage, e.g. <scanId>/<name>.pdf"`
	ScanId     string `arg:"--scan-id" help:"List the pages archived for a scan, or fetch one with --page"`
	Page       int    `arg:"--page" help:"Sequence number of the page to fetch"`
	Input      string `arg:"positional" help:"Encrypted file, stdin when empty"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("unable to fill keychain values: %v", err)
	}

	if args.Document != "" || args.ScanId != "" {
		if err := fetch(); err != nil {
			log.Fatal(err)
		}
		return
	}

	c, err := crypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("unable to create crypt: %v", err)
	}

	var input io.Reader = os.Stdin
	if args.Input != "" {
		f, err := os.Open(args.Input)
		if err != nil {
			log.Fatalf("unable to open %s: %v", args.Input, err)
		}
		defer f.Close()
		input = f
	}

	reader, err := c.Decrypt(input)
	if err != nil {
		log.Fatalf("unable to decrypt: %v", err)
	}

	if _, err = io.Copy(os.Stdout, reader); err != nil {
		log.Fatalf("unable to copy: %v", err)
	}
}

// fetch reads from the configured storage, which decrypts on the way
func fetch() error {
	s, err := storage.Setup(args.StorageType, args.FsPath, args.B2Config())
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	if s == nil {
		return fmt.Errorf("--storage-type is required to fetch from the storage")
	}

	var r io.Reader
	switch {
	case args.Document != "":
		doc, err := s.RetrieveDocument(args.Document)
		if err != nil {
			return fmt.Errorf("retrieve document %s: %w", args.Document, err)
		}
		r = doc.Reader
	case args.Page > 0:
		page, err := s.Retrieve(args.ScanId, args.Page)
		if err != nil {
			return fmt.Errorf("retrieve page %d of %s: %w", args.Page, args.ScanId, err)
		}
		r = page.Reader
	default:
		pages, err := s.ListFiles(args.ScanId)
		if err != nil {
			return fmt.Errorf("list pages of %s: %w", args.ScanId, err)
		}
		for _, p := range pages {
			fmt.Printf("%d\t%s\n", p.SequenceId, p.MimeType)
		}
		return nil
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	_, err = io.Copy(os.Stdout, r)
	return err
}
