// Package shrink re-encodes an image until it fits a size budget.
//
// The search steps output resolution and encoder quality down together,
// one fixed step per attempt, and stops at the first attempt that fits the
// budget or as soon as either parameter reaches its floor. The number of
// attempts is bounded by Config.MaxAttempts regardless of the image or the
// target, so an unreachable budget still yields a result (larger than the
// target). The package performs no logging and holds no shared state.
package shrink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/AnyUserName/imgshrink/internal/encoder"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Params are the encoding parameters of one attempt.
type Params struct {
	Width   int // bound on the largest output dimension
	Quality int
}

// Attempt is the outcome of encoding the source under one Params value.
type Attempt struct {
	Index  int
	Params Params
	Width  int // actual output width in pixels
	Height int // actual output height in pixels
	Bytes  []byte
	SizeKB float64
}

// Result is the last attempt of a search. Ownership of Data passes to the
// caller.
type Result struct {
	Data     []byte
	SizeKB   float64
	Params   Params
	Width    int
	Height   int
	Attempts int
	// GoalMet is false when the search stopped at a parameter floor with
	// the output still above the target. That is not an error.
	GoalMet bool
	Format  string
}

// DefaultMaxPixels is the decode budget used unless WithMaxPixels says
// otherwise: 50 megapixels, about 200 MB as RGBA.
const DefaultMaxPixels = 50_000_000

// Option customizes a Shrinker.
type Option func(*Shrinker)

// WithEncoder replaces the default JPEG encoder.
func WithEncoder(enc encoder.Encoder) Option {
	return func(s *Shrinker) { s.enc = enc }
}

// WithObserver registers a callback invoked after every attempt, in order.
func WithObserver(fn func(Attempt)) Option {
	return func(s *Shrinker) { s.observe = fn }
}

// WithMaxPixels sets the largest width*height accepted by Decode. Values
// <= 0 remove the limit.
func WithMaxPixels(n int) Option {
	return func(s *Shrinker) { s.maxPixels = n }
}

// Shrinker runs size-constrained searches. It is safe for concurrent use.
type Shrinker struct {
	cfg       Config
	enc       encoder.Encoder
	observe   func(Attempt)
	maxPixels int
}

// New returns a Shrinker for the given policy.
func New(cfg Config, opts ...Option) (*Shrinker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Shrinker{cfg: cfg, enc: encoder.Default(), maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the policy the Shrinker was built with.
func (s *Shrinker) Config() Config { return s.cfg }

// Encoder returns the output encoder.
func (s *Shrinker) Encoder() encoder.Encoder { return s.enc }

// Shrink decodes src and searches for an encoding of at most targetKB.
func (s *Shrinker) Shrink(ctx context.Context, src []byte, targetKB float64) (*Result, error) {
	if err := ValidateTarget(targetKB); err != nil {
		return nil, err
	}
	img, err := s.Decode(src)
	if err != nil {
		return nil, err
	}
	return s.ShrinkImage(ctx, img, targetKB)
}

// Decode decodes src within the Shrinker's pixel budget.
func (s *Shrinker) Decode(src []byte) (image.Image, error) {
	return decode(src, s.maxPixels)
}

// Decode decodes raster bytes, applying EXIF orientation. Images larger
// than DefaultMaxPixels are rejected before their pixels are allocated.
func Decode(src []byte) (image.Image, error) {
	return decode(src, DefaultMaxPixels)
}

func decode(src []byte, maxPixels int) (image.Image, error) {
	if len(src) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}
	// The header is enough to size the pixel buffer.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if maxPixels > 0 && int64(hdr.Width)*int64(hdr.Height) > int64(maxPixels) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d > %d pixels",
			ErrImageTooLarge, hdr.Width, hdr.Height, maxPixels)}
	}
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}
	return img, nil
}

// ShrinkImage searches for an encoding of img of at most targetKB.
func (s *Shrinker) ShrinkImage(ctx context.Context, img image.Image, targetKB float64) (*Result, error) {
	if err := ValidateTarget(targetKB); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	b := img.Bounds()
	largest := max(b.Dx(), b.Dy())
	src := flatten(img)

	width := s.cfg.InitialWidth
	if width == AutoWidth {
		width = largest
	}
	quality := s.cfg.InitialQuality

	var last Attempt
	trips := s.cfg.MaxAttempts(width)
	for i := 0; i < trips; i++ {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		att, err := s.attempt(src, width, quality, largest)
		if err != nil {
			return nil, &EncodeError{Attempt: i, Params: Params{Width: width, Quality: quality}, Err: err}
		}
		att.Index = i
		last = att
		if s.observe != nil {
			s.observe(att)
		}

		if att.SizeKB <= targetKB || quality <= s.cfg.MinQuality || width <= s.cfg.MinWidth {
			break
		}
		width = stepDown(width, s.cfg.WidthStep, s.cfg.MinWidth)
		quality = stepDown(quality, s.cfg.QualityStep, s.cfg.MinQuality)
	}

	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	return &Result{
		Data:     last.Bytes,
		SizeKB:   last.SizeKB,
		Params:   last.Params,
		Width:    last.Width,
		Height:   last.Height,
		Attempts: last.Index + 1,
		GoalMet:  last.SizeKB <= targetKB,
		Format:   s.enc.Format(),
	}, nil
}

// attempt fits src inside a width×width box without enlarging it and
// encodes the result at quality.
func (s *Shrinker) attempt(src image.Image, width, quality, largest int) (Attempt, error) {
	resized := imaging.Fit(src, width, width, imaging.Lanczos)
	data, err := s.enc.Encode(resized, quality)
	if err != nil {
		return Attempt{}, err
	}
	rb := resized.Bounds()
	return Attempt{
		Params: Params{Width: min(width, largest), Quality: quality},
		Width:  rb.Dx(),
		Height: rb.Dy(),
		Bytes:  data,
		SizeKB: float64(len(data)) / 1024,
	}, nil
}

// flatten composites translucent images onto white; the lossy target
// format has no alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
