package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/AnyUserName/imgshrink/internal/profile"
	"github.com/AnyUserName/imgshrink/internal/shrink"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP service settings.
type Server struct {
	Bind                 string `toml:"bind"`
	UploadDir            string `toml:"upload_dir"`
	MaxUploadMB          int    `toml:"max_upload_mb"`
	EncodeTimeoutSeconds int    `toml:"encode_timeout_seconds"`
	MaxConcurrent        int    `toml:"max_concurrent"`
	MaxMegapixels        int    `toml:"max_megapixels"`
}

// Policy selects a profile and optionally overrides its fields.
// Nil pointers leave the profile value in place.
type Policy struct {
	Profile        string `toml:"profile"`
	InitialWidth   *int   `toml:"initial_width"`
	InitialQuality *int   `toml:"initial_quality"`
	MinWidth       *int   `toml:"min_width"`
	MinQuality     *int   `toml:"min_quality"`
	WidthStep      *int   `toml:"width_step"`
	QualityStep    *int   `toml:"quality_step"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for imgshrink.
type Config struct {
	Server  Server  `toml:"server"`
	Policy  Policy  `toml:"policy"`
	Logging Logging `toml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Bind:                 "127.0.0.1:3000",
			UploadDir:            "uploads",
			MaxUploadMB:          10,
			EncodeTimeoutSeconds: 30,
			MaxMegapixels:        50,
		},
		Policy: Policy{
			Profile: profile.DefaultName,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imgshrink/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imgshrink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	dir, err := expandPath(strings.TrimSpace(c.Server.UploadDir))
	if err != nil {
		return err
	}
	c.Server.UploadDir = dir
	c.Policy.Profile = strings.ToLower(strings.TrimSpace(c.Policy.Profile))
	if c.Policy.Profile == "" {
		c.Policy.Profile = profile.DefaultName
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Server.UploadDir == "" {
		return errors.New("server.upload_dir must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.EncodeTimeoutSeconds < 0 {
		return fmt.Errorf("server.encode_timeout_seconds must not be negative, got %d", c.Server.EncodeTimeoutSeconds)
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent must not be negative, got %d", c.Server.MaxConcurrent)
	}
	if c.Server.MaxMegapixels <= 0 {
		return fmt.Errorf("server.max_megapixels must be positive, got %d", c.Server.MaxMegapixels)
	}
	if !profile.Exists(c.Policy.Profile) {
		return fmt.Errorf("policy.profile: unknown profile %q (have %s)",
			c.Policy.Profile, strings.Join(profile.Names(), ", "))
	}
	if err := c.ShrinkConfig().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// ShrinkConfig resolves the profile and applies per-field overrides.
func (c *Config) ShrinkConfig() shrink.Config {
	sc := profile.Get(c.Policy.Profile).Policy
	override := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	override(&sc.InitialWidth, c.Policy.InitialWidth)
	override(&sc.InitialQuality, c.Policy.InitialQuality)
	override(&sc.MinWidth, c.Policy.MinWidth)
	override(&sc.MinQuality, c.Policy.MinQuality)
	override(&sc.WidthStep, c.Policy.WidthStep)
	override(&sc.QualityStep, c.Policy.QualityStep)
	return sc
}

// MaxUploadBytes is the request body cap for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// MaxPixels is the decode budget (width*height) for one source image.
func (c *Config) MaxPixels() int {
	return c.Server.MaxMegapixels * 1_000_000
}

// EncodeTimeout is the wall-clock budget of one encode request; zero
// means no limit.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.Server.EncodeTimeoutSeconds) * time.Second
}

// EnsureDirectories creates the upload directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Server.UploadDir, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
