package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. 0 disables
	// rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
	// Compress gzips rotated files in the background.
	Compress bool
}

// DefaultRotationConfig returns the rotation used when the config file
// does not say otherwise.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

var errWriterClosed = errors.New("log file is closed")

// RotatingWriter is an io.Writer over a file that is renamed to
// path.1 (shifting older backups) whenever the next write would push it
// past the size limit. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	maxSizeB   int64
	maxBackups int
	compress   bool

	file        *os.File
	currentSize int64

	compressions sync.WaitGroup
}

// NewRotatingWriter opens (or creates) filePath for appending.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filePath:   filePath,
		maxSizeB:   int64(config.MaxSizeMB) << 20,
		maxBackups: config.MaxBackups,
		compress:   config.Compress,
	}
	if err := rw.openFile(); err != nil {
		return nil, err
	}
	return rw, nil
}

// openFile must be called with mu held (or before rw is shared).
func (rw *RotatingWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(rw.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rw.file = file
	rw.currentSize = info.Size()
	return nil
}

// Write appends p, rotating first if p would not fit. A failed rotation is
// reported on stderr and the write goes to the current file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, errWriterClosed
	}
	if rw.maxSizeB > 0 && rw.currentSize > 0 && rw.currentSize+int64(len(p)) > rw.maxSizeB {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
			if rw.file == nil {
				return 0, err
			}
		}
	}

	n, err := rw.file.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil

	rw.shiftBackups()

	first := rw.backupPath(1)
	if rw.maxBackups <= 0 {
		if err := os.Remove(rw.filePath); err != nil && !os.IsNotExist(err) {
			return errors.Join(fmt.Errorf("failed to discard log file: %w", err), rw.openFile())
		}
		return rw.openFile()
	}
	if err := os.Rename(rw.filePath, first); err != nil {
		return errors.Join(fmt.Errorf("failed to rename log file: %w", err), rw.openFile())
	}
	if rw.compress {
		rw.compressions.Add(1)
		go func() {
			defer rw.compressions.Done()
			if err := compressFile(first); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to compress %s: %v\n", first, err)
			}
		}()
	}
	return rw.openFile()
}

// shiftBackups renames .N to .N+1, dropping whatever falls off the end.
func (rw *RotatingWriter) shiftBackups() {
	oldest := rw.backupPath(max(rw.maxBackups, 1))
	_ = os.Remove(oldest)
	_ = os.Remove(oldest + ".gz")

	for i := rw.maxBackups - 1; i >= 1; i-- {
		from, to := rw.backupPath(i), rw.backupPath(i+1)
		if _, err := os.Stat(from + ".gz"); err == nil {
			_ = os.Rename(from+".gz", to+".gz")
		} else if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
}

func (rw *RotatingWriter) backupPath(n int) string {
	return rw.filePath + "." + strconv.Itoa(n)
}

// compressFile writes path.gz and removes path once the archive is
// complete.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	gzPath := path + ".gz"
	dst, err := os.Create(gzPath)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(gzPath)
		return err
	}
	if err := errors.Join(zw.Close(), dst.Close()); err != nil {
		_ = os.Remove(gzPath)
		return err
	}
	return os.Remove(path)
}

// Sync flushes the current file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close closes the file and waits for background compressions.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	var err error
	if rw.file != nil {
		err = errors.Join(rw.file.Sync(), rw.file.Close())
		rw.file = nil
	}
	rw.mu.Unlock()

	rw.compressions.Wait()
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// CurrentSize returns the size of the current file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.currentSize
}

// FilePath returns the path of the current file.
func (rw *RotatingWriter) FilePath() string {
	return rw.filePath
}
