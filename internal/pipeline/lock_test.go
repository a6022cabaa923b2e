package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRunLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireRunLock(dir)
	if err != nil {
		t.Fatalf("acquireRunLock() error: %v", err)
	}

	// A second acquisition fails while the lock is held.
	if _, err := acquireRunLock(dir); !errors.Is(err, ErrLockHeld) {
		t.Errorf("second acquire error = %v, want ErrLockHeld", err)
	}

	if err := lock.release(); err != nil {
		t.Fatalf("release() error: %v", err)
	}

	// After release the lock is free again.
	lock2, err := acquireRunLock(dir)
	if err != nil {
		t.Fatalf("acquire after release error: %v", err)
	}
	lock2.release()
}

func TestAcquireRunLockStale(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockFilename)

	// Plant a lock old enough to be considered abandoned.
	if err := os.WriteFile(lockPath, []byte("pid=1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * staleLockThreshold)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	lock, err := acquireRunLock(dir)
	if err != nil {
		t.Fatalf("acquireRunLock() should break a stale lock: %v", err)
	}
	lock.release()
}
