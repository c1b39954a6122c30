// Package filter decides which files belong in a packaged extension.
//
// A FileFilter layers ignore patterns from three sources: a project-local
// .wextignore file, the built-in defaults (prior archives, hidden entries,
// dependency directories) and caller-supplied patterns. Every pattern is
// resolved to an absolute-path glob against the source directory once, at
// construction time. Matching is purely lexical; symlinks are not resolved.
//
// The same filter instance serves both archive creation and watch-mode
// change filtering, so a file excluded from packaging can never trigger
// a rebuild.
package filter
