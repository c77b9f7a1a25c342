package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255,
			})
		}
	}
	return img
}

func TestJPEGEncoder_Decodable(t *testing.T) {
	enc := Default()
	data, err := enc.Encode(gradient(64, 48), 80)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("dimensions: got %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
	if enc.ContentType() != "image/jpeg" || enc.Extension() != "jpg" {
		t.Errorf("unexpected metadata: %s %s", enc.ContentType(), enc.Extension())
	}
}

func TestJPEGEncoder_LowerQualityIsSmaller(t *testing.T) {
	img := gradient(128, 128)
	enc := &JPEGEncoder{}
	hi, err := enc.Encode(img, 95)
	if err != nil {
		t.Fatalf("encode q95: %v", err)
	}
	lo, err := enc.Encode(img, 10)
	if err != nil {
		t.Fatalf("encode q10: %v", err)
	}
	if len(lo) >= len(hi) {
		t.Errorf("q10 (%d bytes) not smaller than q95 (%d bytes)", len(lo), len(hi))
	}
}

func TestJPEGEncoder_RejectsBadQuality(t *testing.T) {
	enc := &JPEGEncoder{}
	for _, q := range []int{0, -5, 101} {
		if _, err := enc.Encode(gradient(8, 8), q); err == nil {
			t.Errorf("quality %d: expected error", q)
		}
	}
}
