package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// JPEGEncoder encodes images to baseline JPEG using Go's standard library.
// Output is deterministic for identical input and quality.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() string      { return "jpeg" }
func (e *JPEGEncoder) Extension() string   { return "jpg" }
func (e *JPEGEncoder) ContentType() string { return "image/jpeg" }

func (e *JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1-100", quality)
	}
	if img == nil {
		return nil, fmt.Errorf("jpeg: nil image")
	}

	var buf bytes.Buffer
	b := img.Bounds()
	// Rough upper bound for a typical photo at this size; avoids repeated grow.
	buf.Grow(b.Dx() * b.Dy() / 4)

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
