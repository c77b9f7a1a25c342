package shrink

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget is returned when the size budget is missing,
	// non-numeric, non-finite or not positive. No encode is attempted.
	ErrInvalidTarget = errors.New("invalid target size")

	// ErrCancelled is returned when the context ends mid-search.
	// It wraps the context's cause.
	ErrCancelled = errors.New("shrink cancelled")

	// ErrInvalidConfig is returned by Config.Validate and New.
	ErrInvalidConfig = errors.New("invalid shrink config")

	// ErrImageTooLarge is returned, wrapped in a DecodeError, when the
	// image header declares more pixels than the decode budget allows.
	ErrImageTooLarge = errors.New("image dimensions exceed pixel budget")
)

// DecodeError means the source bytes are not a supported raster image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode source image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the encoder failed on one attempt. The whole search is
// abandoned; Params are the parameters of the failing attempt.
type EncodeError struct {
	Attempt int
	Params  Params
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode attempt %d (width=%d quality=%d): %v",
		e.Attempt, e.Params.Width, e.Params.Quality, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}
