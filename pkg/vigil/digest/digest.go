// Package digest computes content digests and metadata snapshots for single
// files. Content is streamed through SHA-256 in bounded chunks, so files of
// any size are hashed in constant memory.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// DefaultChunkSize is the read buffer used when Options.ChunkSize is unset.
const DefaultChunkSize = 64 * 1024

// errNotRegular is the cause attached to NotFound errors for paths that exist
// but are not regular files.
var errNotRegular = errors.New("not a regular file")

// Options configures an Engine.
type Options struct {
	// ChunkSize is the size of each read from the file.
	ChunkSize int

	// Now returns the time recorded as CheckedTime. Defaults to time.Now.
	Now func() time.Time

	// Open opens a file for reading. Defaults to os.Open.
	Open func(name string) (fs.File, error)
}

// Engine produces FileSnapshots. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	chunkSize int
	now       func() time.Time
	open      func(name string) (fs.File, error)
}

// New creates an Engine, applying defaults for unset options.
func New(opts Options) *Engine {
	e := &Engine{
		chunkSize: opts.ChunkSize,
		now:       opts.Now,
		open:      opts.Open,
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.open == nil {
		e.open = func(name string) (fs.File, error) { return os.Open(name) }
	}
	return e
}

// ChunkSize returns the configured read size.
func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// Snapshot reads the file at path and returns its snapshot.
//
// Size and modification time come from the same open handle the content is
// read through. The returned error is a *types.Error of kind NotFound,
// AccessDenied or IOFailure; on error no snapshot is produced.
func (e *Engine) Snapshot(path string) (types.FileSnapshot, error) {
	id, err := NormalizePath(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}

	// Refuse non-regular files before opening so FIFOs never block the read.
	pre, err := os.Stat(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}
	if !pre.Mode().IsRegular() {
		return types.FileSnapshot{}, types.NewError(types.KindNotFound, "digest", path, errNotRegular)
	}

	f, err := e.open(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}
	if !info.Mode().IsRegular() {
		return types.FileSnapshot{}, types.NewError(types.KindNotFound, "digest", path, errNotRegular)
	}

	sum, _, err := e.sum(f)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}

	return types.FileSnapshot{
		Path:         id,
		Digest:       sum,
		Size:         info.Size(),
		ModifiedTime: info.ModTime().UTC(),
		CheckedTime:  e.now().UTC(),
	}, nil
}

// SnapshotLink digests the target string of the symbolic link at path rather
// than the file it points to.
func (e *Engine) SnapshotLink(path string) (types.FileSnapshot, error) {
	id, err := NormalizePath(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return types.FileSnapshot{}, types.NewError(types.KindNotFound, "digest", path, errors.New("not a symbolic link"))
	}

	target, err := os.Readlink(path)
	if err != nil {
		return types.FileSnapshot{}, types.ClassifyIO("digest", path, err)
	}

	return types.FileSnapshot{
		Path:         id,
		Digest:       DigestBytes([]byte(target)),
		Size:         int64(len(target)),
		ModifiedTime: info.ModTime().UTC(),
		CheckedTime:  e.now().UTC(),
	}, nil
}

// sum folds the reader through SHA-256 using the engine's chunk size.
func (e *Engine) sum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, e.chunkSize)
	n, err := io.CopyBuffer(h, onlyReader{r}, buf)
	if err != nil {
		return "", n, fmt.Errorf("reading content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// onlyReader hides any WriterTo/ReaderFrom so CopyBuffer honours the buffer.
type onlyReader struct {
	io.Reader
}

// DigestReader returns the hex SHA-256 of everything read from r.
func DigestReader(r io.Reader) (string, error) {
	sum, _, err := New(Options{}).sum(r)
	return sum, err
}

// DigestBytes returns the hex SHA-256 of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizePath returns the canonical identity of path: absolute, cleaned
// and slash-separated. It does not resolve symbolic links, so a file keeps
// the identity it was discovered under.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Clean(abs)), nil
}

// ValidDigest reports whether s is a lowercase hex-encoded SHA-256 digest.
func ValidDigest(s string) bool {
	if len(s) != types.DigestHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
