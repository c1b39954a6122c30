package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/webext-packager/internal/logger"
	"github.com/oshokin/webext-packager/internal/service/builder"
	"github.com/oshokin/webext-packager/internal/version"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// saveConfig persists the effective settings for later runs.
	saveConfig bool
	// artifactsDir overrides the configured artifacts directory.
	artifactsDir string
	// ignorePatterns are extra exclusion globs from the command line.
	ignorePatterns []string
	// watchMode rebuilds the package whenever a source file changes.
	watchMode bool
	// logLevel selects the minimum severity of emitted logs.
	logLevel string

	// rootCmd represents the base command that packages an extension source directory.
	rootCmd = &cobra.Command{
		Use:   "webext-packager [source-dir]",
		Short: "Package a browser extension source directory into a versioned archive",
		Long: "Package a browser extension source directory into a versioned .zip archive. " +
			"Files are excluded via layered ignore rules (.wextignore, built-in defaults, --ignore flags). " +
			"With --watch, the package is rebuilt automatically whenever a packaged file changes.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &builder.Options{
				ConfigPath:     configPath,
				SaveConfig:     saveConfig,
				ArtifactsDir:   artifactsDir,
				IgnorePatterns: ignorePatterns,
				AsNeeded:       watchMode,
			}

			if len(args) > 0 {
				options.SourceDir = args[0]
			}

			return builder.Run(ctx, options)
		},
	}
)

// Execute runs the webext-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().BoolVar(&saveConfig, "save-config", false, "persist the effective settings for later runs")
	rootCmd.Flags().StringVarP(&artifactsDir, "artifacts-dir", "a", "", "directory receiving built archives")
	rootCmd.Flags().StringArrayVarP(&ignorePatterns, "ignore", "i", nil, "extra glob pattern to exclude (repeatable)")
	rootCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "rebuild automatically on source changes")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
}
