package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgshrink/internal/hasher"
	"github.com/AnyUserName/imgshrink/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest_path>",
	Short: "Validate a manifest and check that referenced outputs exist and match",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	m, err := manifest.ReadJSON(manifestPath)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	errs := validateManifest(m, filepath.Dir(manifestPath))
	if len(errs) == 0 {
		fmt.Fprintln(w, "  ✓ Manifest is valid")
		fmt.Fprintf(w, "  ✓ %d assets, all outputs present\n", m.Stats.TotalAssets)
		return nil
	}

	fmt.Fprintf(w, "  ✗ Manifest has %d error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "    • %s\n", e)
	}
	return fmt.Errorf("validation failed with %d errors", len(errs))
}

func validateManifest(m *manifest.Manifest, baseDir string) []string {
	var errs []string

	if m.Version != manifest.SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}
	if m.TargetKB <= 0 {
		errs = append(errs, fmt.Sprintf("invalid target_kb %.2f", m.TargetKB))
	}

	keys := make([]string, 0, len(m.Assets))
	for k := range m.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seenPaths := map[string]string{}
	for _, key := range keys {
		asset := m.Assets[key]
		o := asset.Output

		if asset.Original.Width <= 0 || asset.Original.Height <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid original dimensions %dx%d",
				key, asset.Original.Width, asset.Original.Height))
		}
		if o.Width <= 0 || o.Height <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid output dimensions %dx%d", key, o.Width, o.Height))
		}
		if o.Width > asset.Original.Width || o.Height > asset.Original.Height {
			errs = append(errs, fmt.Sprintf("asset %q: output %dx%d larger than original %dx%d",
				key, o.Width, o.Height, asset.Original.Width, asset.Original.Height))
		}
		if o.GoalMet != (o.SizeKB <= m.TargetKB) {
			errs = append(errs, fmt.Sprintf("asset %q: goal_met=%v inconsistent with %.2f KB", key, o.GoalMet, o.SizeKB))
		}
		if o.Path == "" {
			errs = append(errs, fmt.Sprintf("asset %q: missing output path", key))
			continue
		}
		if other, dup := seenPaths[o.Path]; dup {
			errs = append(errs, fmt.Sprintf("asset %q: output path %q also used by %q", key, o.Path, other))
		}
		seenPaths[o.Path] = key

		f, err := os.Open(filepath.Join(baseDir, filepath.FromSlash(o.Path)))
		if err != nil {
			errs = append(errs, fmt.Sprintf("asset %q: file not found: %s", key, o.Path))
			continue
		}
		info, statErr := f.Stat()
		sum, hashErr := hasher.ContentHashReader(f, 0)
		f.Close()
		switch {
		case statErr != nil || hashErr != nil:
			errs = append(errs, fmt.Sprintf("asset %q: cannot read %s", key, o.Path))
		case info.Size() != o.Size:
			errs = append(errs, fmt.Sprintf("asset %q: size mismatch: manifest=%d, disk=%d", key, o.Size, info.Size()))
		case o.Hash != "" && sum != o.Hash:
			errs = append(errs, fmt.Sprintf("asset %q: hash mismatch: manifest=%s, disk=%s", key, o.Hash, sum))
		}
	}

	// Verify stats consistency.
	if m.Stats.TotalAssets != len(m.Assets) {
		errs = append(errs, fmt.Sprintf("stats.total_assets mismatch: %d != %d", m.Stats.TotalAssets, len(m.Assets)))
	}

	return errs
}
