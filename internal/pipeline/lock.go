package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockFilename = ".refseqdl.lock"

	// staleLockThreshold is the maximum age of a lock before it's
	// considered abandoned by a dead run.
	staleLockThreshold = 10 * time.Minute
)

// ErrLockHeld means another run appears to be active against the same
// output root.
var ErrLockHeld = errors.New("output directory is locked: another run may be in progress")

// runLock is an exclusive lock on an output root. Two concurrent runs
// against the same root would race each other's directory-exists
// idempotency checks, so only one may hold the lock.
type runLock struct {
	path string
	file *os.File
}

// acquireRunLock takes the lock for the given output root. Uses
// O_CREATE|O_EXCL for atomic lock creation; a stale lock from a dead
// run is removed and retried once.
func acquireRunLock(root string) (*runLock, error) {
	lockPath := filepath.Join(root, lockFilename)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isLockStale(lockPath); !stale {
			return nil, ErrLockHeld
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockHeld
		}
	}

	// Lock metadata (PID and timestamp) for debugging abandoned locks
	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	return &runLock{path: lockPath, file: file}, nil
}

// release releases the lock.
func (l *runLock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// isLockStale checks if a lock file is older than the stale threshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) > staleLockThreshold, nil
}
