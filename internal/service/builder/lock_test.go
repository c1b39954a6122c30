package builder

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquireReleaseLock claims a fresh directory and releases it again.
func TestAcquireReleaseLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	lock, err := acquireArtifactsLock(ctx, dir)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, LockFilename))
	require.NoError(t, err)
	require.Contains(t, string(contents), strconv.Itoa(os.Getpid()))

	lock.release(ctx)
	require.NoFileExists(t, filepath.Join(dir, LockFilename))
}

// TestAcquireLockStaleMarker recovers a marker whose owning process is gone.
func TestAcquireLockStaleMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	// PIDs cannot realistically reach this value, so the owner is dead.
	stale := []byte("999999999\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFilename), stale, 0o600))

	lock, err := acquireArtifactsLock(ctx, dir)
	require.NoError(t, err)

	lock.release(ctx)
}

// TestAcquireLockGarbageMarker treats unparseable contents as stale.
func TestAcquireLockGarbageMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFilename), []byte("not a pid"), 0o600))

	lock, err := acquireArtifactsLock(ctx, dir)
	require.NoError(t, err)

	lock.release(ctx)
}

// TestAcquireLockOwnPID never blocks on a marker left by this very process.
func TestAcquireLockOwnPID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	own := []byte(strconv.Itoa(os.Getpid()) + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFilename), own, 0o600))

	lock, err := acquireArtifactsLock(ctx, dir)
	require.NoError(t, err)

	lock.release(ctx)
}
