// Package pdf lays out scanned pages as a PDF document, one page per image.
package pdf

import (
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "pdf")

var ErrNoPages = errors.New("no pages to write")

func init() {
	// Keep pdfcpu away from the user's config directory
	model.ConfigPath = "disable"
}

// Assemble writes one page per scanned page to w, in order. Every page is as
// large as its image in pixels and the image covers the whole page.
func Assemble(pages []models.ScannedPage, w io.Writer) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	images := make([]io.Reader, 0, len(pages))
	for _, p := range pages {
		if p.Reader == nil {
			return fmt.Errorf("page %s has no data", p.Id())
		}
		if _, err := p.Reader.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind page %s: %w", p.Id(), err)
		}
		log.Debugf("adding page %s (%dx%d)", p.Id(), p.Width, p.Height)
		images = append(images, p.Reader)
	}

	importConfig := pdfcpu.DefaultImportConfig()
	importConfig.Pos = types.Full
	if err := api.ImportImages(nil, w, images, importConfig, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}

type PageSize struct {
	Width  float64
	Height float64
}

// Inspect returns the size of every page of the PDF in rs
func Inspect(rs io.ReadSeeker) ([]PageSize, error) {
	dims, err := api.PageDims(rs, model.NewDefaultConfiguration())
	if err != nil {
		return nil, err
	}
	sizes := make([]PageSize, 0, len(dims))
	for _, d := range dims {
		sizes = append(sizes, PageSize{Width: d.Width, Height: d.Height})
	}
	return sizes, nil
}
