package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgshrink/internal/config"
	"github.com/AnyUserName/imgshrink/internal/logging"
)

var (
	version    = "0.1.0"
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "imgshrink",
	Short: "Re-encode images to fit a file-size budget",
	Long: `imgshrink re-encodes raster images so they fit a target size in kilobytes.

Each attempt fits the image inside a shrinking bounding box and lowers the
JPEG quality, stopping at the first attempt under the target or when the
width or quality floor is reached. Run it as a web upload service (serve)
or directly on files and directories (compress).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/imgshrink/config.toml or ./imgshrink.toml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"imgshrink %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// loadConfig loads the configuration and builds a logger from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg, verbose)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		logger.Debug("config loaded", slog.String("path", path))
	} else {
		logger.Debug("no config file, using defaults", slog.String("path", path))
	}
	return cfg, logger, nil
}
