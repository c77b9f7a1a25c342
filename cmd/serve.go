package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgshrink/internal/server"
	"github.com/AnyUserName/imgshrink/internal/shrink"
	"github.com/AnyUserName/imgshrink/internal/storage"
)

var (
	serveBind string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload web service",
	Long: `Serves an upload form at / and accepts POST /compress with a jpeg/jpg/png
file ("image") and a target size in KB ("size"). Compressed files are
written to the upload directory and served under /uploads/.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address (overrides server.bind)")
	serveCmd.Flags().StringVar(&serveDir, "dir", "", "upload directory (overrides server.upload_dir)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveBind != "" {
		cfg.Server.Bind = serveBind
	}
	if serveDir != "" {
		cfg.Server.UploadDir = serveDir
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := storage.New(cfg.Server.UploadDir)
	if err != nil {
		return err
	}
	shrinker, err := shrink.New(cfg.ShrinkConfig(), shrink.WithMaxPixels(cfg.MaxPixels()))
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	srv, err := server.New(server.Options{
		Bind:           cfg.Server.Bind,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		EncodeTimeout:  cfg.EncodeTimeout(),
		MaxConcurrent:  cfg.Server.MaxConcurrent,
	}, store, shrinker, logger)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}
