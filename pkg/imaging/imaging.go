// Package imaging turns the bytes delivered by a scanner into page images
// the PDF writer accepts.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var ErrUnsupportedImage = errors.New("unsupported image format")

type Image struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// Normalize decodes raw and returns it in a format that can be embedded
// in a PDF. JPEG, PNG and TIFF are kept as they are, BMP is converted to PNG.
func Normalize(raw []byte) (*Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	mt := mimetype.Detect(raw)
	switch {
	case mt.Is("image/jpeg"), mt.Is("image/png"), mt.Is("image/tiff"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", mt.String(), err)
		}
		return &Image{
			Data:     raw,
			Width:    cfg.Width,
			Height:   cfg.Height,
			MimeType: baseType(mt),
		}, nil
	case mt.Is("image/bmp"):
		img, err := bmp.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode bmp: %w", err)
		}
		buf := bytes.NewBuffer(nil)
		if err := png.Encode(buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		b := img.Bounds()
		return &Image{
			Data:     buf.Bytes(),
			Width:    b.Dx(),
			Height:   b.Dy(),
			MimeType: "image/png",
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
}

func baseType(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is("image/jpeg"):
			return "image/jpeg"
		case m.Is("image/png"):
			return "image/png"
		case m.Is("image/tiff"):
			return "image/tiff"
		}
	}
	return mt.String()
}
