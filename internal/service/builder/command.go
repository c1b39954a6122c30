package builder

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/webext-packager/internal/config"
	"github.com/oshokin/webext-packager/internal/filter"
	"github.com/oshokin/webext-packager/internal/logger"
)

// Options contains inputs for the build entry point.
type Options struct {
	// ConfigPath is an optional path to a YAML settings file.
	ConfigPath string
	// SaveConfig persists the effective settings back to ConfigPath
	// (or the default settings file) for later runs.
	SaveConfig bool
	// SourceDir is the extension source directory (defaults to the working directory).
	SourceDir string
	// ArtifactsDir overrides the configured artifacts directory.
	ArtifactsDir string
	// IgnorePatterns are extra exclusion globs layered on top of the
	// defaults and the .wextignore file.
	IgnorePatterns []string
	// AsNeeded enables watch mode: rebuild whenever a packaged file changes.
	AsNeeded bool
}

// Run executes the packaging workflow: one build, plus a watch session when
// requested. Errors from the initial build are command failures; watch-mode
// rebuild errors are contained to the session's logs.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "webext-packager")

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	if opts.SaveConfig {
		if err := config.Save(opts.ConfigPath, cfg); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	fileFilter, err := filter.NewFileFilter(ctx, filter.Options{
		SourceDir:    cfg.SourceDir,
		IgnoreFiles:  cfg.IgnorePatterns,
		ArtifactsDir: cfg.ArtifactsDir,
	})
	if err != nil {
		return err
	}

	orchestrator := NewOrchestrator(NewCreator())

	result, err := orchestrator.Build(ctx, &BuildParams{
		SourceDir:        cfg.SourceDir,
		ArtifactsDir:     cfg.ArtifactsDir,
		AsNeeded:         opts.AsNeeded,
		Debounce:         cfg.Debounce,
		Filter:           fileFilter,
		ShowReadyMessage: true,
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	logger.DebugKV(ctx, "Build completed", "extension_path", result.ExtensionPath)

	return nil
}

// resolveConfig merges the settings file (when provided) with command-line
// overrides and fills in defaults.
func resolveConfig(opts *Options) (*config.Config, error) {
	sourceDir := opts.SourceDir
	if sourceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}

		sourceDir = wd
	}

	var cfg *config.Config

	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded

		if opts.SourceDir != "" {
			cfg.SourceDir = sourceDir
		}
	} else {
		cfg = config.Default(sourceDir)
	}

	if opts.ArtifactsDir != "" {
		cfg.ArtifactsDir = opts.ArtifactsDir
	}

	cfg.IgnorePatterns = append(cfg.IgnorePatterns, opts.IgnorePatterns...)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
