package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// RotationConfig controls when the log file is rotated and how many old files survive.
type RotationConfig struct {
	// MaxSize is the size in bytes at which the file is rotated.
	// Zero uses the default of 10MB.
	MaxSize int64

	// MaxAge is the number of days rotated files are kept. Zero keeps them
	// regardless of age.
	MaxAge int

	// MaxBackups is the number of rotated files kept. Zero keeps all of them
	// (subject to MaxAge).
	MaxBackups int

	// Daily rotates the file when the local date changes.
	Daily bool
}

// DefaultRotationConfig returns the default rotation policy.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// RotatingWriter is an io.WriteCloser that rotates its file by size or date.
// Writes are serialized within the process by a mutex and across processes
// by an advisory lock on <path>.lock, so several vigil runs can share a log.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu         sync.Mutex
	file       *os.File
	size       int64
	lastRotate time.Time
	lock       *flock.Flock

	now func() time.Time
}

// NewRotatingWriter opens (or creates) the log file at path, creating parent
// directories as needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{
		path: path,
		cfg:  cfg,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.cleanup()
	return w, nil
}

// Path returns the active log file path.
func (w *RotatingWriter) Path() string {
	return w.path
}

// Write appends p, rotating first if p would overflow the file or the date
// has changed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	if err := w.lock.Lock(); err != nil {
		return 0, fmt.Errorf("acquiring log lock: %w", err)
	}
	defer func() {
		_ = w.lock.Unlock()
	}()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	w.lastRotate = info.ModTime()
	return nil
}

func (w *RotatingWriter) due(n int64) bool {
	if w.size > 0 && w.size+n > w.cfg.MaxSize {
		return true
	}
	if w.cfg.Daily && w.size > 0 {
		y1, m1, d1 := w.now().Date()
		y2, m2, d2 := w.lastRotate.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return true
		}
	}
	return false
}

// rotatedName returns the name the current file is moved to, e.g.
// vigil.2024-01-20-150405.log.
func (w *RotatingWriter) rotatedName() string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	name := fmt.Sprintf("%s.%s%s", base, w.now().Format("2006-01-02-150405"), ext)
	// Several rotations within one second must not overwrite each other.
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%s-%d%s", base, w.now().Format("2006-01-02-150405"), i, ext)
	}
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.rotatedName()); err != nil {
			return fmt.Errorf("renaming log file: %w", err)
		}
	}
	if err := w.open(); err != nil {
		return err
	}
	w.lastRotate = w.now()
	w.cleanup()
	return nil
}

// cleanup removes rotated files beyond MaxBackups or older than MaxAge.
// Failures are ignored; the next rotation retries.
func (w *RotatingWriter) cleanup() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotatedFile struct {
		path    string
		modTime time.Time
	}
	var rotated []rotatedFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		if strings.HasSuffix(name, ".lock") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rotated = append(rotated, rotatedFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	slices.SortFunc(rotated, func(a, b rotatedFile) int {
		return b.modTime.Compare(a.modTime)
	})

	maxAge := time.Duration(w.cfg.MaxAge) * 24 * time.Hour
	for i, f := range rotated {
		expired := w.cfg.MaxAge > 0 && w.now().Sub(f.modTime) > maxAge
		excess := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		if expired || excess {
			_ = os.Remove(f.path)
		}
	}
}
