package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds packaging settings shared by one-shot and watch-mode runs.
type Config struct {
	// SourceDir is the extension source directory to package.
	SourceDir string `yaml:"source_dir"`
	// ArtifactsDir is the directory receiving built archives.
	// Relative values are resolved against SourceDir.
	ArtifactsDir string `yaml:"artifacts_dir"`
	// IgnorePatterns are extra glob patterns excluded from packaging,
	// layered on top of the defaults and the .wextignore file.
	IgnorePatterns []string `yaml:"ignore_patterns"`
	// Debounce is the quiet period after the last file-change event before
	// a watch-mode rebuild starts.
	Debounce time.Duration `yaml:"debounce"`
}

const (
	// DefaultConfigFilename is the default filename for packaging settings.
	DefaultConfigFilename = "webext-packager.yaml"

	// DefaultArtifactsDirname is the directory created under the source
	// directory when no artifacts directory is configured.
	DefaultArtifactsDirname = "web-ext-artifacts"

	// DefaultDebounce is the default watch-mode rebuild debounce.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errSourceDirRequired is returned when the source directory is missing.
	errSourceDirRequired = errors.New("source directory must be provided")
)

// Default returns a configuration with all defaults applied for the provided source directory.
func Default(sourceDir string) *Config {
	cfg := &Config{
		SourceDir: sourceDir,
	}

	//nolint:errcheck // Only SourceDir can fail validation and it is set above.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.SourceDir == "" {
		return errSourceDirRequired
	}

	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = filepath.Join(cfg.SourceDir, DefaultArtifactsDirname)
	} else if !filepath.IsAbs(cfg.ArtifactsDir) {
		cfg.ArtifactsDir = filepath.Join(cfg.SourceDir, cfg.ArtifactsDir)
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return nil
}
