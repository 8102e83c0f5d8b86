package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// TestJPEG returns a JPEG of the given size. It is used by tests of the
// packages building on top of imaging.
func TestJPEG(width int, height int) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
