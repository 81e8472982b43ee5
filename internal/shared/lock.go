package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the output directory while a sync holds it.
const LockFileName = ".beatsync.lock"

// RunLock is an exclusive, non-blocking file lock on an output directory.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the lock for dir, returning [ErrRunInProgress] when another process holds it.
func AcquireRunLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, dir)
	}
	return &RunLock{lock: lock}, nil
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.lock.Path()
}

// Release unlocks and removes the lock file.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	os.Remove(l.lock.Path())
	return nil
}
