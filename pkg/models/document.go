package models

import (
	"io"
	"time"
)

type Document struct {
	Name      string
	Reader    io.ReadSeeker
	ScanId    string
	PageCount int
	CreatedAt time.Time
}
