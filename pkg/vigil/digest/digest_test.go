package digest

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// Known SHA-256 vectors.
const (
	emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	checked := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	e := New(Options{Now: func() time.Time { return checked }})

	snap, err := e.Snapshot(path)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	want, _ := NormalizePath(path)
	if snap.Path != want {
		t.Errorf("Path = %q, want %q", snap.Path, want)
	}
	if snap.Digest != helloDigest {
		t.Errorf("Digest = %q, want %q", snap.Digest, helloDigest)
	}
	if snap.Size != 5 {
		t.Errorf("Size = %d, want 5", snap.Size)
	}
	if !snap.ModifiedTime.Equal(mtime) {
		t.Errorf("ModifiedTime = %v, want %v", snap.ModifiedTime, mtime)
	}
	if snap.ModifiedTime.Location() != time.UTC {
		t.Errorf("ModifiedTime not in UTC: %v", snap.ModifiedTime.Location())
	}
	if !snap.CheckedTime.Equal(checked) {
		t.Errorf("CheckedTime = %v, want %v", snap.CheckedTime, checked)
	}
}

func TestSnapshot_EmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty")
	writeFile(t, path, "")

	snap, err := New(Options{}).Snapshot(path)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Digest != emptyDigest {
		t.Errorf("Digest = %q, want %q", snap.Digest, emptyDigest)
	}
	if snap.Size != 0 {
		t.Errorf("Size = %d, want 0", snap.Size)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := strings.Repeat("0123456789abcdef", 10_000)
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	writeFile(t, a, content)
	writeFile(t, b, content)

	// Different chunk sizes must not change the digest.
	small := New(Options{ChunkSize: 7})
	large := New(Options{ChunkSize: 1 << 20})

	sa, err := small.Snapshot(a)
	if err != nil {
		t.Fatalf("Snapshot(a) error = %v", err)
	}
	sb, err := large.Snapshot(b)
	if err != nil {
		t.Fatalf("Snapshot(b) error = %v", err)
	}
	if sa.Digest != sb.Digest {
		t.Errorf("digests differ for identical content: %s vs %s", sa.Digest, sb.Digest)
	}
	if sa.Digest != DigestBytes([]byte(content)) {
		t.Errorf("streamed digest differs from DigestBytes")
	}
}

func TestSnapshot_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := New(Options{}).Snapshot(filepath.Join(dir, "nope"))
		if !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("error = %v, want NotFound", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := New(Options{}).Snapshot(dir)
		if !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("error = %v, want NotFound", err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "secret")
		writeFile(t, path, "x")

		e := New(Options{Open: func(name string) (fs.File, error) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
		}})
		_, err := e.Snapshot(path)
		if !errors.Is(err, types.ErrAccessDenied) {
			t.Fatalf("error = %v, want AccessDenied", err)
		}
	})

	t.Run("read failure", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "flaky")
		writeFile(t, path, "some content")

		e := New(Options{Open: func(name string) (fs.File, error) {
			f, err := os.Open(name)
			if err != nil {
				return nil, err
			}
			return &failingFile{File: f}, nil
		}})
		_, err := e.Snapshot(path)
		if !errors.Is(err, types.ErrIOFailure) {
			t.Fatalf("error = %v, want IOFailure", err)
		}
	})
}

// failingFile returns an error on every Read.
type failingFile struct {
	*os.File
}

func (f *failingFile) Read([]byte) (int, error) {
	return 0, errors.New("device error")
}

func TestSnapshotLink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeFile(t, target, "hello")
	link := filepath.Join(dir, "link")
	if err := os.Symlink("target.txt", link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e := New(Options{})
	snap, err := e.SnapshotLink(link)
	if err != nil {
		t.Fatalf("SnapshotLink() error = %v", err)
	}
	if snap.Digest != DigestBytes([]byte("target.txt")) {
		t.Errorf("link digest should cover the target string")
	}
	if snap.Size != int64(len("target.txt")) {
		t.Errorf("Size = %d, want %d", snap.Size, len("target.txt"))
	}

	if _, err := e.SnapshotLink(target); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("SnapshotLink(regular) error = %v, want NotFound", err)
	}
}

func TestDigestReader(t *testing.T) {
	t.Parallel()

	got, err := DigestReader(bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("DigestReader() error = %v", err)
	}
	if got != helloDigest {
		t.Errorf("DigestReader() = %q, want %q", got, helloDigest)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := NormalizePath(filepath.Join(dir, "x", "..", "a.txt"))
	if err != nil {
		t.Fatalf("NormalizePath() error = %v", err)
	}
	b, err := NormalizePath(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("NormalizePath() error = %v", err)
	}
	if a != b {
		t.Errorf("NormalizePath not stable: %q vs %q", a, b)
	}
	if strings.Contains(a, `\`) {
		t.Errorf("NormalizePath() = %q, want forward slashes", a)
	}
	if !filepath.IsAbs(filepath.FromSlash(a)) {
		t.Errorf("NormalizePath() = %q, want absolute", a)
	}
}

func TestValidDigest(t *testing.T) {
	t.Parallel()

	if !ValidDigest(helloDigest) {
		t.Error("ValidDigest(hello) = false")
	}
	if ValidDigest("abc") {
		t.Error("ValidDigest(short) = true")
	}
	if ValidDigest(strings.Repeat("z", 64)) {
		t.Error("ValidDigest(non-hex) = true")
	}
	if ValidDigest(strings.ToUpper(helloDigest)) {
		t.Error("ValidDigest(uppercase) = true")
	}
}
