package bus

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const lockFileName = "bus.lock"

// fileLock provides cross-process mutual exclusion over a resource
// directory using flock(2). Appends and rotation hold it so records from
// different processes never interleave.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(dir string) *fileLock {
	return &fileLock{path: filepath.Join(dir, lockFileName)}
}

// Lock acquires the exclusive lock, blocking until it is available.
func (fl *fileLock) Lock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

// TryLock acquires the lock if no other holder has it.
func (fl *fileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return true, nil
}

// Unlock releases the lock and closes the lock file.
func (fl *fileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	err := unix.Flock(int(fl.file.Fd()), unix.LOCK_UN)
	closeErr := fl.file.Close()
	fl.file = nil
	if err != nil {
		return fmt.Errorf("funlock: %w", err)
	}
	return closeErr
}
