package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/vigil/pkg/vigil/logging"
)

func rotatedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if name != "vigil.log" && strings.HasPrefix(name, "vigil.") && strings.HasSuffix(name, ".log") {
			out = append(out, name)
		}
	}
	return out
}

func TestRotatingWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w, err := logging.NewRotatingWriter(filepath.Join(dir, "nested", "vigil.log"), logging.RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "line\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.log")
	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 3 {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if got := len(rotatedFiles(t, dir)); got != 2 {
		t.Errorf("rotated files = %d, want 2", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(line)) {
		t.Errorf("active file size = %d, want %d", info.Size(), len(line))
	}
}

func TestRotatingWriter_MaxBackups(t *testing.T) {
	dir := t.TempDir()
	w, err := logging.NewRotatingWriter(filepath.Join(dir, "vigil.log"), logging.RotationConfig{MaxSize: 16, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for range 6 {
		if _, err := w.Write([]byte("0123456789abcdef\n")); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(rotatedFiles(t, dir)); got != 2 {
		t.Errorf("rotated files = %d, want 2", got)
	}
}
