package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgshrink/internal/manifest"
	"github.com/AnyUserName/imgshrink/internal/pipeline"
	"github.com/AnyUserName/imgshrink/internal/profile"
	"github.com/AnyUserName/imgshrink/internal/shrink"
	"github.com/AnyUserName/imgshrink/internal/storage"
)

var (
	compressTarget  string
	compressOutDir  string
	compressProfile string
	compressWorkers int
	compressTrace   bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <file_or_dir>",
	Short: "Shrink an image, or every image under a directory, to a target size",
	Long: `Re-encodes a jpeg/jpg/png file so it fits --target kilobytes.

For a single file the output is written as <name>-compressed-<millis>.<ext>
next to the input (or into --out). For a directory every image is processed
in parallel, outputs are written to --out as <key>-compressed-<hash>.jpg and
an imgshrink.manifest.json summarizes the run.

Reaching a width or quality floor above the target is not an error: the
smallest attempt is kept and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

func init() {
	compressCmd.Flags().StringVarP(&compressTarget, "target", "t", "", "target size in KB (required)")
	compressCmd.Flags().StringVarP(&compressOutDir, "out", "o", "", "output directory (file: next to input, dir: ./imgshrink_out)")
	compressCmd.Flags().StringVarP(&compressProfile, "profile", "p", "", "policy profile (overrides config): "+fmt.Sprint(profile.Names()))
	compressCmd.Flags().IntVarP(&compressWorkers, "workers", "w", 0, "parallel workers for directories (0 = NumCPU)")
	compressCmd.Flags().BoolVar(&compressTrace, "trace", false, "print every attempt (single file only)")
	_ = compressCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, args []string) error {
	targetKB, err := shrink.ParseTarget(compressTarget)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	profileName := cfg.Policy.Profile
	policy := cfg.ShrinkConfig()
	if compressProfile != "" {
		if !profile.Exists(compressProfile) {
			return fmt.Errorf("unknown profile %q (have %v)", compressProfile, profile.Names())
		}
		profileName = compressProfile
		policy = profile.Get(compressProfile).Policy
	}

	input, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	if info.IsDir() {
		outDir := compressOutDir
		if outDir == "" {
			outDir = "imgshrink_out"
		}
		return compressDir(cmd.Context(), cmd.OutOrStdout(), pipeline.Config{
			InputDir:    input,
			OutputDir:   outDir,
			TargetKB:    targetKB,
			ProfileName: profileName,
			Policy:      policy,
			Workers:     compressWorkers,
			MaxPixels:   cfg.MaxPixels(),
			Logger:      logger,
		})
	}

	outDir := compressOutDir
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	return compressFile(cmd.Context(), cmd.OutOrStdout(), logger, fileJob{
		input:     input,
		outDir:    outDir,
		targetKB:  targetKB,
		policy:    policy,
		maxPixels: cfg.MaxPixels(),
		trace:     compressTrace,
		now:       time.Now(),
	})
}

type fileJob struct {
	input     string
	outDir    string
	targetKB  float64
	policy    shrink.Config
	maxPixels int // 0 keeps shrink.DefaultMaxPixels
	trace     bool
	now       time.Time
}

// compressFile shrinks one file into job.outDir and prints a report.
func compressFile(ctx context.Context, w io.Writer, logger *slog.Logger, job fileJob) error {
	data, err := os.ReadFile(job.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var attempts []shrink.Attempt
	opts := []shrink.Option{}
	if job.maxPixels > 0 {
		opts = append(opts, shrink.WithMaxPixels(job.maxPixels))
	}
	if job.trace {
		opts = append(opts, shrink.WithObserver(func(a shrink.Attempt) {
			a.Bytes = nil
			attempts = append(attempts, a)
		}))
	}
	s, err := shrink.New(job.policy, opts...)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	start := time.Now()
	res, err := s.Shrink(ctx, data, job.targetKB)
	if err != nil {
		return err
	}

	store, err := storage.New(job.outDir)
	if err != nil {
		return err
	}
	name, err := store.WriteFile(storage.CompressedName(filepath.Base(job.input), job.now, s.Encoder().Extension()), res.Data)
	if err != nil {
		return err
	}
	logger.Debug("output written", slog.String("path", store.Path(name)))

	if job.trace {
		fmt.Fprintln(w, renderAttempts(attempts, job.targetKB))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Input:       %s (%s)\n", filepath.Base(job.input), humanize.IBytes(uint64(len(data))))
	fmt.Fprintf(w, "  Output:      %s (%s, %.2f KB)\n", name, humanize.IBytes(uint64(len(res.Data))), res.SizeKB)
	fmt.Fprintf(w, "  Target:      %s KB\n", strconv.FormatFloat(job.targetKB, 'f', -1, 64))
	fmt.Fprintf(w, "  Dimensions:  %dx%d (quality %d)\n", res.Width, res.Height, res.Params.Quality)
	fmt.Fprintf(w, "  Attempts:    %d\n", res.Attempts)
	if !res.GoalMet {
		fmt.Fprintln(w, "  Note:        target not reachable within the policy floors; smallest attempt kept")
	}
	fmt.Fprintf(w, "  Time:        %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintln(w)
	return nil
}

func renderAttempts(attempts []shrink.Attempt, targetKB float64) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		fits := ""
		if a.SizeKB <= targetKB {
			fits = "✓"
		}
		rows = append(rows, []string{
			strconv.Itoa(a.Index),
			strconv.Itoa(a.Params.Width),
			strconv.Itoa(a.Params.Quality),
			fmt.Sprintf("%dx%d", a.Width, a.Height),
			fmt.Sprintf("%.2f", a.SizeKB),
			fits,
		})
	}
	return renderTable(
		[]string{"#", "Max width", "Quality", "Output", "KB", "Fits"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func compressDir(ctx context.Context, w io.Writer, cfg pipeline.Config) error {
	start := time.Now()
	absOut, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	cfg.OutputDir = absOut
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	m, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	manifestPath := filepath.Join(absOut, manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printBatchReport(w, m, time.Since(start))
	return nil
}

func printBatchReport(w io.Writer, m *manifest.Manifest, elapsed time.Duration) {
	s := m.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Assets:      %d (target %s KB, profile %s)\n",
		s.TotalAssets, strconv.FormatFloat(m.TargetKB, 'f', -1, 64), m.Profile)
	fmt.Fprintf(w, "  Input size:  %s\n", humanize.IBytes(uint64(s.TotalInputBytes)))
	fmt.Fprintf(w, "  Output size: %s\n", humanize.IBytes(uint64(s.TotalOutputBytes)))
	if s.TotalInputBytes > 0 {
		fmt.Fprintf(w, "  Ratio:       %.1f%% of original\n", float64(s.TotalOutputBytes)/float64(s.TotalInputBytes)*100)
	}
	fmt.Fprintf(w, "  Fit target:  %d   above target: %d   failed: %d\n", s.GoalMet, s.GoalMissed, s.Failed)
	fmt.Fprintf(w, "  Time:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintln(w)

	// Top 10 heaviest outputs.
	keys := make([]string, 0, len(m.Assets))
	for k := range m.Assets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.Assets[keys[i]].Output.Size > m.Assets[keys[j]].Output.Size
	})
	if len(keys) > 10 {
		keys = keys[:10]
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		a := m.Assets[k]
		rows = append(rows, []string{
			truncKey(k, 40),
			humanize.IBytes(uint64(a.Original.Size)),
			humanize.IBytes(uint64(a.Output.Size)),
			strconv.Itoa(a.Output.Quality),
			strconv.Itoa(a.Output.Attempts),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(
			[]string{"Asset", "Original", "Output", "Quality", "Attempts"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  Manifest:    %s\n\n", manifest.FileName)
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
