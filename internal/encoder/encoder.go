package encoder

import (
	"image"
)

// Encoder encodes an image to a single lossy output format.
type Encoder interface {
	// Format returns the output format name (e.g. "jpeg").
	Format() string

	// Encode converts the image to bytes at the given quality (1-100).
	Encode(img image.Image, quality int) ([]byte, error)

	// Extension returns the file extension without dot.
	Extension() string

	// ContentType returns the MIME type of the encoded bytes.
	ContentType() string
}

// Default returns the encoder used when callers do not pick one.
func Default() Encoder {
	return &JPEGEncoder{}
}
