package models

import (
	"fmt"
	"io"
	"time"
)

type ScannedPage struct {
	Reader     io.ReadSeeker
	ScanId     string
	SequenceId int
	ScanTime   time.Time

	Width    int
	Height   int
	MimeType string
}

func (s ScannedPage) Id() string {
	return fmt.Sprintf("%s_%d", s.ScanId, s.SequenceId)
}

// Extension returns the file extension matching the page's image type
func (s ScannedPage) Extension() string {
	switch s.MimeType {
	case "image/png":
		return "png"
	case "image/tiff":
		return "tiff"
	default:
		return "jpg"
	}
}
