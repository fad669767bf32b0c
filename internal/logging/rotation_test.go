package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newSmallWriter(t *testing.T, backups int, compress bool) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = 100
	return rw, path
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	if err := os.WriteFile(path, []byte("existing\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if rw.CurrentSize() != 9 {
		t.Errorf("CurrentSize() = %d, want 9", rw.CurrentSize())
	}
	if _, err := rw.Write([]byte("more\n")); err != nil {
		t.Fatal(err)
	}
	_ = rw.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "existing\nmore\n" {
		t.Errorf("content = %q", data)
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	rw, path := newSmallWriter(t, 2, false)

	line := []byte(strings.Repeat("x", 59) + "\n")
	for range 5 {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
		if info.Size() != 60 {
			t.Errorf("%s size = %d, want one line", p, info.Size())
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("only MaxBackups rotated files should be kept")
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	rw, path := newSmallWriter(t, 0, false)

	line := []byte(strings.Repeat("y", 79) + "\n")
	for range 3 {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	_ = rw.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup expected with MaxBackups=0")
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != 80 {
		t.Errorf("current file should hold just the last line: %v %v", info, err)
	}
}

func TestRotatingWriter_DisabledWhenZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: 3})
	if err != nil {
		t.Fatal(err)
	}
	for range 100 {
		_, _ = rw.Write([]byte(strings.Repeat("z", 99) + "\n"))
	}
	_ = rw.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("rotation must be disabled when MaxSizeMB is 0")
	}
}

func TestRotatingWriter_Compression(t *testing.T) {
	rw, path := newSmallWriter(t, 3, true)

	first := strings.Repeat("a", 69) + "\n"
	_, _ = rw.Write([]byte(first))
	_, _ = rw.Write([]byte(strings.Repeat("b", 69) + "\n"))
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != first {
		t.Errorf("decompressed = %q", data)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, _ := newSmallWriter(t, 1, false)
	_ = rw.Close()
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v", err)
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelDebug, RotationConfig{MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	logger.rotation.maxSizeB = 200

	child := logger.WithResource("ir-remote")
	if child.rotation != logger.rotation {
		t.Error("child logger should share the rotating writer")
	}
	for i := range 10 {
		child.Info("a message long enough to force rotation after a few writes", "i", i)
	}
	_ = logger.Close()

	if _, err := os.Stat(filepath.Join(dir, LogFileName+".1")); err != nil {
		t.Errorf("expected a rotated file: %v", err)
	}
	if entries := readEntries(t, filepath.Join(dir, LogFileName)); entries[0]["resource"] != "ir-remote" {
		t.Errorf("unexpected entry %v", entries[0])
	}
}

func TestNewLoggerWithRotation_Stderr(t *testing.T) {
	logger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if logger.rotation != nil {
		t.Error("no rotating writer expected for stderr")
	}
}
