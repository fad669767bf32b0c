package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var entries []map[string]any
	for i, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when dir is empty")
		}
	})
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{LevelWarn, []string{"WARN", "ERROR"}},
		{"bogus", []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dir := t.TempDir()
			logger, err := NewLogger(dir, tt.level)
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			logger.Debug("m", "key", "value")
			logger.Info("m", "key", "value")
			logger.Warn("m", "key", "value")
			logger.Error("m", "key", "value")
			_ = logger.Close()

			entries := readEntries(t, filepath.Join(dir, LogFileName))
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e["level"] != tt.want[i] || e["key"] != "value" {
					t.Errorf("entry %d = %v", i, e)
				}
			}
		})
	}
}

func TestLogger_ContextAttributes(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithResource("ir-remote").WithPID(100).WithComponent("mediator")
	child.WithPeer(200).Info("request sent", "access", "blocking")
	child.With("orphan").Info("odd args ignored")
	logger.Info("parent untouched")
	_ = logger.Close()

	entries := readEntries(t, filepath.Join(dir, LogFileName))
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	first := entries[0]
	if first["resource"] != "ir-remote" || first["pid"] != float64(100) || first["peer"] != float64(200) ||
		first["component"] != "mediator" || first["access"] != "blocking" {
		t.Errorf("unexpected attributes: %v", first)
	}
	if _, ok := entries[1]["peer"]; ok {
		t.Error("peer must not leak into sibling loggers")
	}
	if _, ok := entries[2]["resource"]; ok {
		t.Error("parent logger must not inherit child attributes")
	}
}

func TestLogger_Enabled(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.Enabled(LevelDebug) {
		t.Error("DEBUG should be disabled at WARN")
	}
	if !logger.Enabled(LevelError) {
		t.Error("ERROR should be enabled at WARN")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.WithResource("r").Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
	if OrNop(logger) != logger {
		t.Error("OrNop must return a non-nil logger unchanged")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"Error":   LevelError,
		"info":    LevelInfo,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			l := logger.WithPeer(g)
			for i := range 25 {
				l.Info("message", "i", i)
			}
		})
	}
	wg.Wait()
	_ = logger.Close()

	if n := len(readEntries(t, filepath.Join(dir, LogFileName))); n != 200 {
		t.Errorf("got %d entries, want 200", n)
	}
}
