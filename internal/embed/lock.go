package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 500 * time.Millisecond

// DownloadLock serializes model downloads across processes. Two kdex
// invocations starting at once would otherwise both trigger a pull of the
// same model.
type DownloadLock struct {
	flock *flock.Flock
	path  string
}

// NewDownloadLock returns a lock rooted in dir. The directory is created
// on Acquire if it does not exist.
func NewDownloadLock(dir string) *DownloadLock {
	path := filepath.Join(dir, ".download.lock")
	return &DownloadLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Acquire blocks until the lock is held or ctx is cancelled.
func (l *DownloadLock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	locked, err := l.flock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("acquiring download lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("download lock at %s not acquired", l.path)
	}
	return nil
}

// Release drops the lock. Safe to call when the lock is not held.
func (l *DownloadLock) Release() error {
	return l.flock.Unlock()
}

// Path returns the lock file location.
func (l *DownloadLock) Path() string {
	return l.path
}
