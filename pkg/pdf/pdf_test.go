package pdf_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/scan2pdf/pkg/imaging"
	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/pdf"
)

func pages(sizes ...[2]int) []models.ScannedPage {
	b := models.NewBatch("test")
	for _, s := range sizes {
		b.Append(models.ScannedPage{
			Reader:   bytes.NewReader(imaging.TestJPEG(s[0], s[1])),
			Width:    s[0],
			Height:   s[1],
			MimeType: "image/jpeg",
		})
	}
	return b.Pages
}

func TestAssemblePageSizes(t *testing.T) {
	in := pages([2]int{200, 300}, [2]int{320, 180}, [2]int{64, 64})

	out := bytes.NewBuffer(nil)
	require.NoError(t, pdf.Assemble(in, out))
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("%PDF-")))

	sizes, err := pdf.Inspect(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	require.Len(t, sizes, 3)
	for i, p := range in {
		assert.InDelta(t, float64(p.Width), sizes[i].Width, 0.01, "page %d", i+1)
		assert.InDelta(t, float64(p.Height), sizes[i].Height, 0.01, "page %d", i+1)
	}
}

func TestAssembleRewindsReaders(t *testing.T) {
	in := pages([2]int{50, 70})
	_, err := in[0].Reader.Seek(10, 0)
	require.NoError(t, err)

	out := bytes.NewBuffer(nil)
	require.NoError(t, pdf.Assemble(in, out))
	sizes, err := pdf.Inspect(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Len(t, sizes, 1)
}

func TestAssembleNoPages(t *testing.T) {
	err := pdf.Assemble(nil, bytes.NewBuffer(nil))
	assert.ErrorIs(t, err, pdf.ErrNoPages)
}
