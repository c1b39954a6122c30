package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// watchTimeout bounds every wait on the change callback.
const watchTimeout = 5 * time.Second

// changeRecorder collects callback invocations behind a mutex.
type changeRecorder struct {
	mu      sync.Mutex
	calls   int
	changed []string
	fired   chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{
		fired: make(chan struct{}, 16),
	}
}

func (r *changeRecorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls++
	r.changed = append(r.changed, changed...)
	r.mu.Unlock()

	r.fired <- struct{}{}

	return nil
}

func (r *changeRecorder) snapshot() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.changed))
	copy(out, r.changed)
	sort.Strings(out)

	return r.calls, out
}

// startWatcher runs the watcher in the background and returns a stop function.
func startWatcher(t *testing.T, w *Watcher) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- w.Run(ctx)
	}()

	return func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

// TestWatcherCoalescesEvents verifies that rapid writes produce one callback
// containing all changed paths.
func TestWatcherCoalescesEvents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := newChangeRecorder()

	w, err := New(context.Background(), Config{
		SourceDir: dir,
		Debounce:  100 * time.Millisecond,
		OnChange:  recorder.onChange,
	})
	require.NoError(t, err)

	stop := startWatcher(t, w)
	defer stop()

	for _, name := range []string{"a.js", "b.js", "c.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-recorder.fired:
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for change callback")
	}

	// Settle so a spurious extra callback would be caught.
	time.Sleep(250 * time.Millisecond)

	calls, changed := recorder.snapshot()
	require.Equal(t, 1, calls)

	for _, want := range []string{"a.js", "b.js", "c.js"} {
		require.Contains(t, changed, want)
	}
}

// TestWatcherFiltersIgnoredPaths ensures rejected paths never reach the callback.
func TestWatcherFiltersIgnoredPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := newChangeRecorder()

	wantFile := func(_ context.Context, path string) bool {
		return !strings.HasPrefix(filepath.Base(path), ".")
	}

	w, err := New(context.Background(), Config{
		SourceDir: dir,
		Debounce:  100 * time.Millisecond,
		WantFile:  wantFile,
		OnChange:  recorder.onChange,
	})
	require.NoError(t, err)

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("x"), 0o600))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("x"), 0o600))

	select {
	case <-recorder.fired:
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for change callback")
	}

	_, changed := recorder.snapshot()
	require.Contains(t, changed, "a.js")
	require.NotContains(t, changed, ".secret")
}

// TestWatcherNewDirectories checks that directories created after startup
// are watched and their files trigger callbacks.
func TestWatcherNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := newChangeRecorder()

	w, err := New(context.Background(), Config{
		SourceDir: dir,
		Debounce:  100 * time.Millisecond,
		OnChange:  recorder.onChange,
	})
	require.NoError(t, err)

	stop := startWatcher(t, w)
	defer stop()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give fsnotify a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.js"), []byte("x"), 0o600))

	select {
	case <-recorder.fired:
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for change callback")
	}

	_, changed := recorder.snapshot()
	require.Contains(t, changed, filepath.Join("sub", "nested.js"))
}

// TestWatcherCallbackFailureKeepsWatching ensures a failing callback does not
// stop later batches from being delivered.
func TestWatcherCallbackFailureKeepsWatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu    sync.Mutex
		calls int
	)

	fired := make(chan error, 16)

	w, err := New(context.Background(), Config{
		SourceDir: dir,
		Debounce:  100 * time.Millisecond,
		OnChange: func(_ context.Context, _ []string) error {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()

			if first {
				err := os.ErrPermission
				fired <- err

				return err
			}

			fired <- nil

			return nil
		},
	})
	require.NoError(t, err)

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("1"), 0o600))

	select {
	case err := <-fired:
		require.Error(t, err)
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for first callback")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("2"), 0o600))

	select {
	case err := <-fired:
		require.NoError(t, err)
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for second callback")
	}
}

// TestWatcherRunTwice rejects a second Run call.
func TestWatcherRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(context.Background(), Config{SourceDir: t.TempDir()})
	require.NoError(t, err)

	stop := startWatcher(t, w)
	defer stop()

	// Give the first Run a moment to claim the watcher.
	time.Sleep(20 * time.Millisecond)

	require.Error(t, w.Run(context.Background()))
}
