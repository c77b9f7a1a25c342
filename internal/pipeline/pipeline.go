package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/AnyUserName/imgshrink/internal/manifest"
	"github.com/AnyUserName/imgshrink/internal/shrink"
)

// Config holds all parameters for a batch run.
type Config struct {
	InputDir    string
	OutputDir   string
	TargetKB    float64
	ProfileName string
	Policy      shrink.Config
	Workers     int
	MaxPixels   int // decode budget; 0 keeps shrink.DefaultMaxPixels
	Logger      *slog.Logger
}

// Pipeline shrinks every image under a directory.
type Pipeline struct {
	cfg      Config
	shrinker *shrink.Shrinker
}

// New creates a configured pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := shrink.ValidateTarget(cfg.TargetKB); err != nil {
		return nil, err
	}
	var opts []shrink.Option
	if cfg.MaxPixels > 0 {
		opts = append(opts, shrink.WithMaxPixels(cfg.MaxPixels))
	}
	s, err := shrink.New(cfg.Policy, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, shrinker: s}, nil
}

// Run executes the batch and returns the manifest. Individual failures
// are logged and counted; the run fails only if every image fails or ctx
// ends.
func (p *Pipeline) Run(ctx context.Context) (*manifest.Manifest, error) {
	log := p.cfg.Logger

	// Step 1: Scan for images.
	sources, err := ScanImages(p.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %s", p.cfg.InputDir)
	}
	log.Debug("scan complete", slog.Int("images", len(sources)), slog.Int("workers", p.cfg.Workers))

	// Step 2: Process images in parallel.
	results := make([]processResult, len(sources))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}: // acquire
			case <-ctx.Done():
				results[idx] = processResult{key: s.Key, err: fmt.Errorf("%s: %w", s.RelPath, shrink.ErrCancelled)}
				return
			}
			defer func() { <-sem }() // release

			log.Debug("processing", slog.String("source", s.RelPath))
			results[idx] = processImage(ctx, s, p.cfg, p.shrinker)

			if r := results[idx]; r.err == nil {
				log.Debug("done",
					slog.String("source", s.RelPath),
					slog.String("output", r.asset.Output.Path),
					slog.Float64("size_kb", r.asset.Output.SizeKB),
					slog.Bool("goal_met", r.asset.Output.GoalMet),
				)
			}
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", shrink.ErrCancelled, err)
	}

	// Step 3: Collect results into manifest.
	m := manifest.New(p.cfg.ProfileName, p.cfg.TargetKB)
	pol := p.cfg.Policy
	m.Policy = manifest.Policy{
		InitialWidth:   pol.InitialWidth,
		InitialQuality: pol.InitialQuality,
		MinWidth:       pol.MinWidth,
		MinQuality:     pol.MinQuality,
		WidthStep:      pol.WidthStep,
		QualityStep:    pol.QualityStep,
	}

	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			log.Warn("image failed", slog.String("key", r.key), slog.String("error", r.err.Error()))
			continue
		}
		m.Assets[r.key] = r.asset
	}

	// Partial failures do not fail the run.
	if len(errs) > 0 && len(errs) == len(sources) {
		return nil, fmt.Errorf("all %d images failed to process: %w", len(errs), errors.Join(errs...))
	}

	m.BuildInfo = &manifest.BuildInfo{Workers: p.cfg.Workers}
	m.Stats.Failed = len(errs)
	m.ComputeStats()
	return m, nil
}
