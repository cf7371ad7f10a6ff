package liveness

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOutputWatcherStatFallback(t *testing.T) {
	dir := t.TempDir()
	w, err := NewOutputWatcher(dir)
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Close()

	// A file written before any event is observed still reports its mtime.
	other := filepath.Join(t.TempDir(), "outside.log")
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if w.LastOutput(other).IsZero() {
		t.Error("expected stat fallback for unobserved file")
	}

	if !w.LastOutput(filepath.Join(dir, "missing.log")).IsZero() {
		t.Error("missing file should report zero time")
	}
}

func TestOutputWatcherCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	w, err := NewOutputWatcher(dir)
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}
