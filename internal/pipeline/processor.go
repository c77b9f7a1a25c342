package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/imgshrink/internal/hasher"
	"github.com/AnyUserName/imgshrink/internal/manifest"
	"github.com/AnyUserName/imgshrink/internal/shrink"
)

const compressedMarker = "-compressed-"

// processResult holds the result of processing a single source image.
type processResult struct {
	key   string
	asset manifest.Asset
	err   error
}

// processImage handles a single source image: read, decode, search, write.
func processImage(ctx context.Context, src Source, cfg Config, s *shrink.Shrinker) processResult {
	result := processResult{key: src.Key}

	data, err := os.ReadFile(src.AbsPath)
	if err != nil {
		result.err = fmt.Errorf("read %s: %w", src.RelPath, err)
		return result
	}

	img, err := s.Decode(data)
	if err != nil {
		result.err = fmt.Errorf("%s: %w", src.RelPath, err)
		return result
	}
	bounds := img.Bounds()

	res, err := s.ShrinkImage(ctx, img, cfg.TargetKB)
	if err != nil {
		result.err = fmt.Errorf("%s: %w", src.RelPath, err)
		return result
	}

	// Content hash for filename: key-compressed-<hash8>.ext
	contentHash := hasher.ContentHash(res.Data, 0)
	keyDir := filepath.Dir(src.Key)
	fileName := fmt.Sprintf("%s%s%s.%s",
		filepath.Base(src.Key), compressedMarker, contentHash[:8], s.Encoder().Extension())
	relPath := filepath.ToSlash(filepath.Join(keyDir, fileName))

	outPath := filepath.Join(cfg.OutputDir, relPath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		result.err = fmt.Errorf("create dir for %s: %w", relPath, err)
		return result
	}
	if err := os.WriteFile(outPath, res.Data, 0o644); err != nil {
		result.err = fmt.Errorf("write %s: %w", relPath, err)
		return result
	}

	result.asset = manifest.Asset{
		Original: manifest.OriginalInfo{
			Path:   src.RelPath,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Format: src.Format,
			Size:   src.Size,
		},
		Output: manifest.Output{
			Path:     relPath,
			Format:   res.Format,
			Width:    res.Width,
			Height:   res.Height,
			Size:     int64(len(res.Data)),
			SizeKB:   res.SizeKB,
			Hash:     contentHash,
			MaxWidth: res.Params.Width,
			Quality:  res.Params.Quality,
			Attempts: res.Attempts,
			GoalMet:  res.GoalMet,
		},
	}
	return result
}
