// Package batch runs one scan session: acquire pages from the feeder and
// save them as a single PDF.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/acquire"
	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/pdf"
	"github.com/denysvitali/scan2pdf/pkg/storage/fs"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "batch")

const DefaultFileName = "ScannedDocument.pdf"

var (
	ErrBusy             = errors.New("a scan is already running")
	ErrInvalidOutputDir = errors.New("please enter a valid save path")
	ErrNoImages         = errors.New("no images scanned")
)

type Config struct {
	Devices     acquire.Opener
	Retries     int
	MaxPages    int
	CheckFeeder bool
	// Archive receives every page as it is scanned
	Archive model.Storer
	// Upload receives a copy of the finished PDF
	Upload model.DocumentStorer
}

type Request struct {
	DeviceID  string
	OutputDir string
	FileName  string
	WaitTime  time.Duration
}

type Result struct {
	Path        string `json:"path"`
	UploadedTo  string `json:"uploadedTo,omitempty"`
	ScanId      string `json:"scanId"`
	Pages       int    `json:"pages"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
}

type Runner struct {
	config Config
	mu     sync.Mutex
}

func New(config Config) *Runner {
	return &Runner{config: config}
}

// Run scans every sheet in the feeder of the requested device and writes
// them to <OutputDir>/<FileName>. Only one Run executes at a time.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrBusy
	}
	defer r.mu.Unlock()

	if req.DeviceID == "" {
		return nil, acquire.ErrNoDeviceSelected
	}
	out, err := fs.New(req.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = DefaultFileName
	}
	if !strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		fileName += ".pdf"
	}

	a := acquire.New(r.config.Devices, acquire.Config{
		WaitTime:    req.WaitTime,
		Retries:     r.config.Retries,
		MaxPages:    r.config.MaxPages,
		CheckFeeder: r.config.CheckFeeder,
		Archive:     r.config.Archive,
	})
	b, err := a.Acquire(ctx, req.DeviceID)
	var aborted *acquire.AbortedError
	if err != nil && !errors.As(err, &aborted) {
		return nil, err
	}
	if b.Len() == 0 {
		if aborted != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoImages, aborted.Err)
		}
		return nil, ErrNoImages
	}
	defer b.Release()

	return r.save(out, fileName, b, aborted)
}

func (r *Runner) save(out *fs.Fs, fileName string, b *models.Batch, aborted *acquire.AbortedError) (*Result, error) {
	buf := bytes.NewBuffer(nil)
	if err := pdf.Assemble(b.Pages, buf); err != nil {
		return nil, fmt.Errorf("unable to create PDF: %w", err)
	}
	sizes, err := pdf.Inspect(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("unable to read back PDF: %w", err)
	}
	if len(sizes) != b.Len() {
		return nil, fmt.Errorf("PDF has %d pages, %d were scanned", len(sizes), b.Len())
	}
	for i, s := range sizes {
		log.Debugf("page %d: %.0fx%.0f pt", i+1, s.Width, s.Height)
	}
	doc := models.Document{
		Name:      fileName,
		Reader:    bytes.NewReader(buf.Bytes()),
		ScanId:    b.ScanId,
		PageCount: b.Len(),
		CreatedAt: time.Now(),
	}
	p, err := out.StoreDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to save PDF: %w", err)
	}
	log.Infof("PDF saved at %s (%d pages)", p, doc.PageCount)

	res := &Result{
		Path:   p,
		ScanId: b.ScanId,
		Pages:  doc.PageCount,
	}
	if aborted != nil {
		res.Aborted = true
		res.AbortReason = aborted.Err.Error()
	}

	if r.config.Upload != nil {
		doc.Reader = bytes.NewReader(buf.Bytes())
		loc, err := r.config.Upload.StoreDocument(doc)
		if err != nil {
			log.Errorf("unable to upload PDF: %v", err)
		} else {
			log.Infof("PDF uploaded to %s", loc)
			res.UploadedTo = loc
		}
	}
	return res, nil
}
