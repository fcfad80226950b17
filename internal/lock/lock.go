// Package lock implements a per-archive advisory lock: only one ingest
// process may hold an archive at a time, so that the tuple-scoped
// transaction in internal/ingest never races another ingester's coalescing
// of the same (file, location, arch).
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/fepitre/debian-snapshot/internal/ingesterr"
)

// Archive is a held advisory lock on one archive's lock file.
type Archive struct {
	file *os.File
}

// Acquire takes an exclusive, non-blocking flock on path, creating the
// parent directory and lock file if needed. Returns an *ingesterr.Error
// of kind LockHeld if another process already holds it.
func Acquire(path string) (*Archive, error) {
	if err := os.MkdirAll(parentDir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ingesterr.New(ingesterr.LockHeld, path, fmt.Errorf("archive is locked by another process"))
		}
		return nil, fmt.Errorf("lock: flock %s: %w", path, err)
	}
	return &Archive{file: f}, nil
}

// Release drops the lock and closes the underlying file descriptor.
func (a *Archive) Release() error {
	if err := unix.Flock(int(a.file.Fd()), unix.LOCK_UN); err != nil {
		a.file.Close()
		return fmt.Errorf("lock: unlock: %w", err)
	}
	return a.file.Close()
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
