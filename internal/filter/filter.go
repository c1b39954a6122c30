package filter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oshokin/webext-packager/internal/logger"
)

// IgnoreFilename is the project-local ignore-rules file read from the
// source directory root, one glob pattern per line.
const IgnoreFilename = ".wextignore"

// defaultIgnoredPatterns lists patterns excluded from every package:
// prior extension archives, hidden files and folders with their contents,
// and dependency-manager directories with their contents.
//
//nolint:gochecknoglobals // Shared read-only defaults, copied on access.
var defaultIgnoredPatterns = []string{
	"**/*.xpi",
	"**/*.zip",
	"**/.*",
	"**/.*/**",
	"**/node_modules",
	"**/node_modules/**",
}

// Options holds the inputs for building a FileFilter.
type Options struct {
	// SourceDir is the extension source directory. It is resolved to an
	// absolute path once and fixed for the filter's lifetime.
	SourceDir string
	// BaseIgnoredPatterns overrides the built-in default patterns.
	// A nil slice keeps the defaults; an empty non-nil slice disables them.
	BaseIgnoredPatterns []string
	// IgnoreFiles are caller-supplied patterns layered after the defaults.
	IgnoreFiles []string
	// ArtifactsDir, when it is a strict sub-path of SourceDir, is excluded
	// together with everything beneath it so archives never swallow prior
	// build output.
	ArtifactsDir string
}

// FileFilter evaluates file paths against the layered ignore patterns.
type FileFilter struct {
	// sourceDir is the absolute source directory all paths resolve against.
	sourceDir string
	// patterns are absolute-path globs in insertion order.
	patterns []string
}

// DefaultIgnoredPatterns returns a copy of the built-in ignore patterns.
func DefaultIgnoredPatterns() []string {
	out := make([]string, len(defaultIgnoredPatterns))
	copy(out, defaultIgnoredPatterns)

	return out
}

// NewFileFilter builds a filter for the provided source directory.
// The .wextignore file is read best-effort: a missing or unreadable file
// contributes no patterns. Invalid glob patterns are rejected eagerly so
// they fail here instead of silently never matching.
func NewFileFilter(ctx context.Context, opts Options) (*FileFilter, error) {
	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	f := &FileFilter{
		sourceDir: sourceDir,
	}

	base := opts.BaseIgnoredPatterns
	if base == nil {
		base = defaultIgnoredPatterns
	}

	// Layering order: file-declared, base defaults, caller-supplied.
	// Matching is a logical OR over the whole list, so the order only
	// affects which pattern a diagnostic trace names.
	raw := make([]string, 0, len(base)+len(opts.IgnoreFiles)+2)
	raw = append(raw, f.readIgnoreFile(ctx)...)
	raw = append(raw, base...)
	raw = append(raw, opts.IgnoreFiles...)

	if artifacts, ok := f.artifactsPatterns(opts.ArtifactsDir); ok {
		raw = append(raw, artifacts...)
	}

	for _, pattern := range raw {
		if err := f.addPattern(pattern); err != nil {
			return nil, err
		}
	}

	logger.DebugKV(ctx, "File filter ready", "source_dir", sourceDir, "patterns", len(f.patterns))

	return f, nil
}

// SourceDir returns the absolute source directory the filter resolves against.
func (f *FileFilter) SourceDir() string {
	return f.sourceDir
}

// Patterns returns a copy of the active absolute-path glob patterns in insertion order.
func (f *FileFilter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)

	return out
}

// WantFile reports whether the file should be included in the package.
// The path is resolved against the source directory when relative and then
// tested against every stored pattern; any match excludes the file.
func (f *FileFilter) WantFile(ctx context.Context, path string) bool {
	resolved := f.resolve(path)

	for _, pattern := range f.patterns {
		matched, err := doublestar.Match(pattern, resolved)
		if err != nil {
			// Patterns are validated at insertion time, so this is unreachable
			// short of a doublestar behavior change.
			continue
		}

		if matched {
			logger.DebugKV(ctx, "File excluded from package", "path", resolved, "pattern", pattern)
			return false
		}
	}

	return true
}

// addPattern resolves a raw pattern to an absolute-path glob and stores it.
func (f *FileFilter) addPattern(pattern string) error {
	resolved := f.resolve(pattern)

	if !doublestar.ValidatePattern(resolved) {
		return fmt.Errorf("invalid ignore pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	f.patterns = append(f.patterns, resolved)

	return nil
}

// resolve joins a path or pattern against the source directory when relative
// and normalizes it to forward slashes for glob matching.
func (f *FileFilter) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.sourceDir, path)
	}

	return filepath.ToSlash(path)
}

// readIgnoreFile loads patterns from the .wextignore file at the source root.
// Local overrides are best-effort: read failures yield an empty list.
func (f *FileFilter) readIgnoreFile(ctx context.Context) []string {
	path := filepath.Join(f.sourceDir, IgnoreFilename)

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.DebugKV(ctx, "Ignore file unreadable, skipping", "path", path, "error", err)
		}

		return nil
	}

	var patterns []string

	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		patterns = append(patterns, line)
	}

	logger.DebugKV(ctx, "Loaded ignore file", "path", path, "patterns", len(patterns))

	return patterns
}

// artifactsPatterns returns patterns shielding the artifacts directory when
// it is a strict descendant of the source directory. A sibling, parent or
// equal directory has no effect on filtering.
func (f *FileFilter) artifactsPatterns(artifactsDir string) ([]string, bool) {
	if artifactsDir == "" {
		return nil, false
	}

	resolved := artifactsDir
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(f.sourceDir, resolved)
	}

	rel, err := filepath.Rel(f.sourceDir, resolved)
	if err != nil {
		return nil, false
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}

	return []string{resolved, filepath.Join(resolved, "**")}, true
}
