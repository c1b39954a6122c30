package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/webext-packager/internal/logger"
)

// DefaultDebounce is the quiet period after the last filesystem event before
// the callback fires. Rapid successive events (an editor writing and then
// renaming a temp file) coalesce into a single callback.
const DefaultDebounce = 500 * time.Millisecond

var (
	// errAlreadyStarted is returned when Run is called a second time.
	errAlreadyStarted = errors.New("watcher is already running")
	// errEventsClosed is returned when fsnotify closes its channels unexpectedly.
	errEventsClosed = errors.New("filesystem event channel closed unexpectedly")
)

// Config holds the parameters for a Watcher.
type Config struct {
	// SourceDir is the root directory to watch.
	SourceDir string
	// Debounce is the quiet period before the callback fires.
	// Zero or negative values fall back to DefaultDebounce.
	Debounce time.Duration
	// WantFile decides whether a changed path is relevant. A nil predicate
	// admits every path.
	WantFile func(ctx context.Context, path string) bool
	// OnChange receives the deduplicated list of changed paths, relative to
	// SourceDir. An error return is logged and watching continues.
	OnChange func(ctx context.Context, changed []string) error
}

// Watcher monitors a source tree and fires a debounced callback when
// admitted files change. Run must be called exactly once.
type Watcher struct {
	cfg       Config
	fsw       *fsnotify.Watcher
	sourceDir string
	debounce  time.Duration
	started   atomic.Bool
}

// New creates a Watcher, resolves the source directory and registers every
// admitted directory beneath it for monitoring.
func New(ctx context.Context, cfg Config) (*Watcher, error) {
	sourceDir, err := filepath.Abs(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		cfg:       cfg,
		fsw:       fsw,
		sourceDir: sourceDir,
		debounce:  debounce,
	}

	if err := w.addDirectories(ctx); err != nil {
		//nolint:errcheck // Best-effort cleanup after a failed init.
		_ = fsw.Close()

		return nil, err
	}

	return w, nil
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on clean cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)

	// fire drains the pending set and invokes OnChange. When a previous
	// callback is still in flight the pending set is kept intact and the
	// timer is re-armed, so change batches coalesce into a single deferred
	// rebuild instead of overlapping or getting lost.
	fire := func() {
		if ctx.Err() != nil {
			return
		}

		if !busy.CompareAndSwap(false, true) {
			logger.Debug(ctx, "Previous change callback still running, deferring batch")

			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

			return
		}
		defer busy.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}

		changed := make([]string, 0, len(pending))
		for path := range pending {
			changed = append(changed, path)
		}

		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange == nil {
			return
		}

		if err := w.cfg.OnChange(ctx, changed); err != nil {
			logger.ErrorKV(ctx, "Change callback failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		localTimer := timer
		mu.Unlock()

		if localTimer != nil {
			localTimer.Stop()
		}

		if err := w.fsw.Close(); err != nil {
			logger.WarnKV(ctx, "Closing filesystem watcher failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errEventsClosed
			}

			if !w.admit(ctx, event.Name) {
				continue
			}

			// Extend recursive coverage to directories created after startup.
			if event.Has(fsnotify.Create) && w.maybeAddDir(ctx, event.Name) {
				continue
			}

			rel, err := filepath.Rel(w.sourceDir, event.Name)
			if err != nil {
				rel = event.Name
			}

			logger.DebugKV(ctx, "Source change detected", "path", rel, "op", event.Op.String())

			mu.Lock()
			pending[rel] = struct{}{}

			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errEventsClosed
			}

			logger.WarnKV(ctx, "Filesystem watcher error", "error", err)
		}
	}
}

// admit applies the inclusion predicate to an absolute path.
func (w *Watcher) admit(ctx context.Context, path string) bool {
	if w.cfg.WantFile == nil {
		return true
	}

	return w.cfg.WantFile(ctx, path)
}

// addDirectories walks the source tree and registers every admitted
// directory. Inaccessible paths are skipped so a stray unreadable directory
// does not prevent watching the rest of the tree.
func (w *Watcher) addDirectories(ctx context.Context) error {
	walkErr := filepath.WalkDir(w.sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.WarnKV(ctx, "Skipping inaccessible path", "path", path, "error", err)
			return nil //nolint:nilerr // Intentional skip of inaccessible paths.
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.sourceDir && !w.admit(ctx, path) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch directory %s: %w", path, err)
		}

		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("register source tree: %w", walkErr)
	}

	return nil
}

// maybeAddDir registers path when it is an admitted directory.
// It reports whether the path was a directory.
func (w *Watcher) maybeAddDir(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	if err := w.fsw.Add(path); err != nil {
		logger.WarnKV(ctx, "Watching new directory failed", "path", path, "error", err)
	}

	return true
}
