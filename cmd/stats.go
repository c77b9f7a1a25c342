package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgshrink/internal/manifest"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a compressed output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	path := args[0]

	// If path is a directory, look for manifest inside.
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, manifest.FileName)
	}

	m, err := manifest.ReadJSON(path)
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), m)
	return nil
}

func printStats(w io.Writer, m *manifest.Manifest) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Manifest version: %d\n", m.Version)
	fmt.Fprintf(w, "  Generated:        %s\n", m.GeneratedAt)
	fmt.Fprintf(w, "  Profile:          %s\n", m.Profile)
	fmt.Fprintf(w, "  Target:           %.2f KB\n", m.TargetKB)
	p := m.Policy
	fmt.Fprintf(w, "  Policy:           %dpx/q%d → %dpx/q%d, step %dpx/%d\n",
		p.InitialWidth, p.InitialQuality, p.MinWidth, p.MinQuality, p.WidthStep, p.QualityStep)
	if m.BuildInfo != nil {
		fmt.Fprintf(w, "  Workers:          %d\n", m.BuildInfo.Workers)
	}
	fmt.Fprintln(w)

	s := m.Stats
	fmt.Fprintf(w, "  Total assets:     %d\n", s.TotalAssets)
	fmt.Fprintf(w, "  Input size:       %s\n", humanize.IBytes(uint64(s.TotalInputBytes)))
	fmt.Fprintf(w, "  Output size:      %s\n", humanize.IBytes(uint64(s.TotalOutputBytes)))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Fprintf(w, "  Compression:      %.1f%% of original\n", ratio)
	}
	fmt.Fprintf(w, "  Fit target:       %d / %d\n", s.GoalMet, s.TotalAssets)
	if s.Failed > 0 {
		fmt.Fprintf(w, "  Failed sources:   %d\n", s.Failed)
	}
	fmt.Fprintln(w)

	// Per-quality breakdown: how far the search had to go.
	qualityStats := map[int]int{}
	attemptTotal := 0
	for _, a := range m.Assets {
		qualityStats[a.Output.Quality]++
		attemptTotal += a.Output.Attempts
	}
	var qualities []int
	for q := range qualityStats {
		qualities = append(qualities, q)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(qualities)))
	fmt.Fprintln(w, "  Final quality breakdown:")
	for _, q := range qualities {
		fmt.Fprintf(w, "    q%-3d  %4d assets\n", q, qualityStats[q])
	}
	if len(m.Assets) > 0 {
		fmt.Fprintf(w, "  Mean attempts:    %.1f\n", float64(attemptTotal)/float64(len(m.Assets)))
	}

	// Warnings.
	var warnings []string
	for key, a := range m.Assets {
		if !a.Output.GoalMet {
			warnings = append(warnings, fmt.Sprintf("asset %q is %.2f KB, above the %.2f KB target", key, a.Output.SizeKB, m.TargetKB))
		}
	}
	sort.Strings(warnings)
	if len(warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Warnings (%d):\n", len(warnings))
		for _, msg := range warnings {
			fmt.Fprintf(w, "    ⚠ %s\n", msg)
		}
	}
	fmt.Fprintln(w)
}
