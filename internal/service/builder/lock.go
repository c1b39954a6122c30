package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/webext-packager/internal/logger"
)

// LockFilename marks an artifacts directory as owned by a running packager
// instance. The artifacts directory and the named output file are
// single-writer; two instances targeting the same directory would race.
const LockFilename = ".webext-packager.lock"

// lockFilePermissions is used for the lock marker file.
const lockFilePermissions os.FileMode = 0o600

// artifactsLock is a held lock on an artifacts directory.
type artifactsLock struct {
	path string
}

// acquireArtifactsLock claims the artifacts directory for this process.
// A marker left by a live packager process refuses the claim; a marker
// whose owner is gone is treated as stale and recovered.
func acquireArtifactsLock(ctx context.Context, artifactsDir string) (*artifactsLock, error) {
	path := filepath.Join(artifactsDir, LockFilename)

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(contents)))
		if convErr == nil && isPackagerAlive(pid) {
			return nil, fmt.Errorf("artifacts directory %s is in use by packager process %d", artifactsDir, pid)
		}

		logger.DebugKV(ctx, "Recovering stale artifacts lock", "path", path)

		if removeErr := os.Remove(path); removeErr != nil {
			return nil, fmt.Errorf("remove stale lock: %w", removeErr)
		}
	case os.IsNotExist(err):
		// First claim.
	default:
		return nil, fmt.Errorf("read artifacts lock: %w", err)
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), lockFilePermissions); err != nil {
		return nil, fmt.Errorf("write artifacts lock: %w", err)
	}

	return &artifactsLock{path: path}, nil
}

// release removes the lock marker.
func (l *artifactsLock) release(ctx context.Context) {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logger.WarnKV(ctx, "Removing artifacts lock failed", "path", l.path, "error", err)
	}
}

// isPackagerAlive reports whether pid belongs to a live process running the
// same executable as this one. The current process never blocks itself.
func isPackagerAlive(pid int) bool {
	if pid == os.Getpid() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return false
	}

	return process.Executable() == filepath.Base(os.Args[0])
}
