package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AnyUserName/imgshrink/internal/hasher"
	"github.com/AnyUserName/imgshrink/internal/shrink"
	"github.com/AnyUserName/imgshrink/internal/storage"
)

// resultView is the data rendered by result.html.
type resultView struct {
	OriginalImage   string
	CompressedImage string
	OriginalSize    string
	CompressedSize  string
	TargetSize      string
	Width           int
	Height          int
	Quality         int
	Attempts        int
	GoalMet         bool
	Digest          string
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r.Context(), s.logger)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			http.Error(w, msgTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			http.Error(w, "malformed upload", http.StatusBadRequest)
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, msgNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext, err := checkUpload(header)
	if err != nil {
		logger.Info("upload rejected", slog.String("file", header.Filename), slog.String("reason", err.Error()))
		if errors.Is(err, errNoFile) {
			http.Error(w, msgNoFile, http.StatusBadRequest)
		} else {
			http.Error(w, msgFileType, http.StatusBadRequest)
		}
		return
	}

	targetKB, err := shrink.ParseTarget(r.FormValue("size"))
	if err != nil {
		logger.Info("upload rejected", slog.String("file", header.Filename), slog.String("reason", err.Error()))
		http.Error(w, msgInvalidTarget, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("read upload", slog.String("error", err.Error()))
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	landing, _, err := s.store.SaveUpload(bytes.NewReader(data), ext)
	if err != nil {
		logger.Error("save upload", slog.String("error", err.Error()))
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	res, err := s.runShrink(r.Context(), data, targetKB)
	if err != nil {
		if rmErr := s.store.Remove(landing); rmErr != nil {
			logger.Warn("remove upload", slog.String("file", landing), slog.String("error", rmErr.Error()))
		}
		status, msg := errorResponse(err)
		logger.Error("compression failed",
			slog.String("file", header.Filename),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, msg, status)
		return
	}

	outName, err := s.writeOutput(storage.CompressedName(header.Filename, s.now(), s.shrinker.Encoder().Extension()), res.Data)
	if err != nil {
		if rmErr := s.store.Remove(landing); rmErr != nil {
			logger.Warn("remove upload", slog.String("file", landing), slog.String("error", rmErr.Error()))
		}
		logger.Error("write output", slog.String("file", header.Filename), slog.String("error", err.Error()))
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	logger.Info("image compressed",
		slog.String("original", header.Filename),
		slog.String("upload", landing),
		slog.String("output", outName),
		slog.Int("original_bytes", len(data)),
		slog.Int("output_bytes", len(res.Data)),
		slog.Float64("target_kb", targetKB),
		slog.Int("width", res.Width),
		slog.Int("quality", res.Params.Quality),
		slog.Int("attempts", res.Attempts),
		slog.Bool("goal_met", res.GoalMet),
	)

	s.render(w, r, "result.html", resultView{
		OriginalImage:   header.Filename,
		CompressedImage: outName,
		OriginalSize:    formatKB(float64(len(data)) / 1024),
		CompressedSize:  formatKB(res.SizeKB),
		TargetSize:      strconv.FormatFloat(targetKB, 'f', -1, 64),
		Width:           res.Width,
		Height:          res.Height,
		Quality:         res.Params.Quality,
		Attempts:        res.Attempts,
		GoalMet:         res.GoalMet,
		Digest:          hasher.ContentHash(res.Data, 0),
	})
}

// runShrink runs one search under the encode timeout once a slot is free.
func (s *Server) runShrink(ctx context.Context, data []byte, targetKB float64) (*shrink.Result, error) {
	if s.opts.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EncodeTimeout)
		defer cancel()
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for slot: %w", shrink.ErrCancelled, context.Cause(ctx))
	}

	return s.shrinker.Shrink(ctx, data, targetKB)
}

// errorResponse maps search failures to a status and user-facing message.
func errorResponse(err error) (int, string) {
	var decodeErr *shrink.DecodeError
	switch {
	case errors.Is(err, shrink.ErrInvalidTarget):
		return http.StatusBadRequest, msgInvalidTarget
	case errors.Is(err, shrink.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, msgTooManyPixels
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity, msgNotAnImage
	case errors.Is(err, shrink.ErrCancelled):
		return http.StatusServiceUnavailable, msgTimeout
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func formatKB(kb float64) string {
	return strconv.FormatFloat(kb, 'f', 2, 64)
}
