package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oshokin/webext-packager/internal/archive"
	"github.com/oshokin/webext-packager/internal/filter"
	"github.com/oshokin/webext-packager/internal/locale"
	"github.com/oshokin/webext-packager/internal/logger"
	"github.com/oshokin/webext-packager/internal/manifest"
	"github.com/oshokin/webext-packager/internal/watcher"
)

// ArchiveSuffix is appended to every built artifact name.
const ArchiveSuffix = ".zip"

// artifactsDirPermissions is used when creating the artifacts directory.
const artifactsDirPermissions os.FileMode = 0o755

// unsafeNameChars matches runs of characters that are replaced with a single
// underscore when deriving the artifact file name.
var unsafeNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

// ErrBuildInProgress is returned when a rebuild is requested while another
// one is still running. The watcher keeps the change batch and retries, so
// hitting this guard defers work instead of losing it.
var ErrBuildInProgress = errors.New("a build is already in progress")

// Result describes one successful packaging pass.
type Result struct {
	// ExtensionPath is the absolute path of the written archive.
	ExtensionPath string
}

// RebuildError wraps a failure of a watch-triggered rebuild. It is logged
// and handed back to the watch layer without ending the watch session.
type RebuildError struct {
	Err error
}

// Error renders the wrapped rebuild failure.
func (e *RebuildError) Error() string {
	return fmt.Sprintf("rebuild failed: %v", e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *RebuildError) Unwrap() error {
	return e.Err
}

// CreateParams are the inputs for one packaging pass.
type CreateParams struct {
	// Manifest is the pre-loaded manifest; nil makes Create load it from
	// SourceDir.
	Manifest *manifest.Data
	// SourceDir is the extension source directory.
	SourceDir string
	// Filter decides per-file inclusion for the archive.
	Filter *filter.FileFilter
	// ArtifactsDir receives the written archive.
	ArtifactsDir string
	// ShowReadyMessage controls the human-readable completion message.
	ShowReadyMessage bool
}

// Creator packages a source directory into a versioned archive.
type Creator struct{}

// NewCreator returns a Creator.
func NewCreator() *Creator {
	return &Creator{}
}

// Create runs one packaging pass: manifest resolution, filtered archive
// creation, localization and artifact writing. On failure no partial
// artifact is left behind at the returned path.
func (c *Creator) Create(ctx context.Context, params *CreateParams) (*Result, error) {
	data := params.Manifest

	if data == nil {
		loaded, err := manifest.Load(ctx, params.SourceDir)
		if err != nil {
			return nil, err
		}

		data = loaded
	}

	// The id is diagnostic only; extensions without one package fine.
	if data.ID != "" {
		logger.DebugKV(ctx, "Packaging extension", "id", data.ID, "version", data.Version)
	}

	buffer, err := archive.BuildBuffer(ctx, params.SourceDir, params.Filter.WantFile)
	if err != nil {
		return nil, err
	}

	name := data.Name

	if data.DefaultLocale != "" {
		messageFile := locale.MessagesFile(params.SourceDir, data.DefaultLocale)

		name, err = locale.ResolveName(ctx, messageFile, data.Name)
		if err != nil {
			return nil, err
		}
	}

	extensionPath := filepath.Join(params.ArtifactsDir, safeFileName(name+"-"+data.Version+ArchiveSuffix))

	if err := writeArtifact(extensionPath, buffer.Bytes()); err != nil {
		return nil, err
	}

	if params.ShowReadyMessage {
		logger.Infof(ctx, "Your web extension is ready: %s", extensionPath)
	}

	return &Result{ExtensionPath: extensionPath}, nil
}

// safeFileName lower-cases the name and collapses every run of characters
// outside [a-z0-9.-] into a single underscore, producing a filesystem-safe
// artifact name across locales and platforms.
func safeFileName(name string) string {
	return unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_")
}

// writeArtifact writes the archive next to its final path and renames it
// into place, so a failed write never leaves a partial artifact at the
// path reported to the caller.
func writeArtifact(path string, contents []byte) error {
	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}

	if _, err := temp.Write(contents); err != nil {
		//nolint:errcheck // The temp file is being abandoned anyway.
		_ = temp.Close()
		//nolint:errcheck // Best-effort cleanup.
		_ = os.Remove(temp.Name())

		return fmt.Errorf("write artifact: %w", err)
	}

	if err := temp.Close(); err != nil {
		//nolint:errcheck // Best-effort cleanup.
		_ = os.Remove(temp.Name())

		return fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(temp.Name(), path); err != nil {
		//nolint:errcheck // Best-effort cleanup.
		_ = os.Remove(temp.Name())

		return fmt.Errorf("finalize artifact: %w", err)
	}

	return nil
}

// BuildParams are the inputs for an orchestrated build.
type BuildParams struct {
	// SourceDir is the extension source directory.
	SourceDir string
	// ArtifactsDir receives built archives; created when missing.
	ArtifactsDir string
	// AsNeeded enables watch mode after the initial build.
	AsNeeded bool
	// Debounce is the watch-mode rebuild debounce; zero uses the watcher default.
	Debounce time.Duration
	// Manifest optionally short-circuits manifest loading on every pass.
	Manifest *manifest.Data
	// Filter decides inclusion for both archiving and change filtering.
	Filter *filter.FileFilter
	// ShowReadyMessage controls the per-build completion message.
	ShowReadyMessage bool
}

// Orchestrator sequences packaging passes and enforces that at most one
// build per instance is in flight at a time.
type Orchestrator struct {
	creator *Creator
	// building is the single-flight guard for rebuild entry.
	building atomic.Bool
}

// NewOrchestrator returns an Orchestrator driving the provided Creator.
func NewOrchestrator(creator *Creator) *Orchestrator {
	return &Orchestrator{
		creator: creator,
	}
}

// Build ensures the artifacts directory exists, performs the initial
// packaging pass and, when AsNeeded is set, keeps rebuilding on qualifying
// source changes until ctx is cancelled. The returned Result is always the
// initial build's; watch-mode rebuilds surface only through logs.
func (o *Orchestrator) Build(ctx context.Context, params *BuildParams) (*Result, error) {
	if err := os.MkdirAll(params.ArtifactsDir, artifactsDirPermissions); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}

	lock, err := acquireArtifactsLock(ctx, params.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	defer lock.release(ctx)

	result, err := o.Rebuild(ctx, params)
	if err != nil {
		return nil, err
	}

	if !params.AsNeeded {
		return result, nil
	}

	if err := o.watch(ctx, params); err != nil {
		return nil, err
	}

	return result, nil
}

// Rebuild is the single-flight entry for one packaging pass. A call landing
// while another pass is active fails fast with ErrBuildInProgress.
func (o *Orchestrator) Rebuild(ctx context.Context, params *BuildParams) (*Result, error) {
	if !o.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer o.building.Store(false)

	return o.creator.Create(ctx, &CreateParams{
		Manifest:         params.Manifest,
		SourceDir:        params.SourceDir,
		Filter:           params.Filter,
		ArtifactsDir:     params.ArtifactsDir,
		ShowReadyMessage: params.ShowReadyMessage,
	})
}

// watch blocks on a filtered source watcher, rebuilding per change batch.
// Rebuild failures are logged in full and re-raised to the watch layer,
// which records them and keeps the session alive.
func (o *Orchestrator) watch(ctx context.Context, params *BuildParams) error {
	w, err := watcher.New(ctx, watcher.Config{
		SourceDir: params.SourceDir,
		Debounce:  params.Debounce,
		WantFile:  params.Filter.WantFile,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.InfoKV(ctx, "Source changed, rebuilding", "files", len(changed))

			result, rebuildErr := o.Rebuild(ctx, params)
			if rebuildErr != nil {
				wrapped := &RebuildError{Err: rebuildErr}
				logger.ErrorKV(ctx, "Rebuild after source change failed", "error", rebuildErr)

				return wrapped
			}

			logger.DebugKV(ctx, "Rebuild finished", "extension_path", result.ExtensionPath)

			return nil
		},
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Watching for source changes", "source_dir", params.SourceDir)

	return w.Run(ctx)
}
