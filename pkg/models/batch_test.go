package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/denysvitali/scan2pdf/pkg/models"
)

func TestBatchAppendKeepsOrder(t *testing.T) {
	b := models.NewBatch("abc")
	for i := 0; i < 3; i++ {
		b.Append(models.ScannedPage{Width: 100 + i})
	}

	assert.Equal(t, 3, b.Len())
	for i, p := range b.Pages {
		assert.Equal(t, i+1, p.SequenceId)
		assert.Equal(t, 100+i, p.Width)
		assert.Equal(t, "abc", p.ScanId)
	}
	assert.Equal(t, "abc_2", b.Pages[1].Id())

	b.Release()
	assert.Equal(t, 0, b.Len())
}

func TestScannedPageExtension(t *testing.T) {
	assert.Equal(t, "png", models.ScannedPage{MimeType: "image/png"}.Extension())
	assert.Equal(t, "jpg", models.ScannedPage{MimeType: "image/jpeg"}.Extension())
	assert.Equal(t, "tiff", models.ScannedPage{MimeType: "image/tiff"}.Extension())
}

func TestScannerString(t *testing.T) {
	assert.Equal(t, "Fujitsu fi-7160 (wia)", models.Scanner{Name: "Fujitsu fi-7160", Backend: "wia"}.String())
	assert.Equal(t, "Plain", models.Scanner{Name: "Plain"}.String())
}
