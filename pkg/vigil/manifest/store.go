package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/vigil/pkg/vigil/digest"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	// BackupSuffix names the backup generation. Defaults to ".bak".
	BackupSuffix string

	// Observer receives save notifications and backup warnings.
	Observer types.Observer
}

// tempInfix separates a file's name from the random suffix of its
// in-progress copy.
const tempInfix = ".tmp-"

// Store reads and writes a manifest at a fixed location.
//
// Saves are serialized across processes by an advisory lock on
// <location>.lock. Readers take no lock: the manifest file is only ever
// replaced by rename, so a reader sees either the old or the new document.
type Store struct {
	location string
	backup   string
	lock     *flock.Flock
	observer types.Observer

	// mu serializes saves within the process; the file lock only excludes
	// other processes.
	mu sync.Mutex
}

// NewStore returns a Store for the manifest file at location.
func NewStore(location string, opts StoreOptions) (*Store, error) {
	if location == "" {
		return nil, errors.New("manifest location cannot be empty")
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest location: %w", err)
	}

	suffix := opts.BackupSuffix
	if suffix == "" {
		suffix = DefaultBackupSuffix
	}

	return &Store{
		location: abs,
		backup:   abs + suffix,
		lock:     flock.New(abs + ".lock"),
		observer: types.OrNop(opts.Observer),
	}, nil
}

// Location returns the absolute manifest path.
func (s *Store) Location() string {
	return s.location
}

// BackupPath returns the absolute path of the backup generation.
func (s *Store) BackupPath() string {
	return s.backup
}

// LockPath returns the absolute path of the writer lock file.
func (s *Store) LockPath() string {
	return s.lock.Path()
}

// ReservedPaths returns the normalized identities of every file the store
// owns, so walks can leave them out of the tree being checked.
func (s *Store) ReservedPaths() []string {
	var out []string
	for _, p := range []string{s.location, s.backup, s.lock.Path()} {
		if id, err := digest.NormalizePath(p); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// TempPatterns returns patterns for the temporary files written while
// saving the manifest and its backup. Each is a normalized directory plus a
// doublestar pattern for the base name, e.g. "/srv/hashes.json.tmp-*".
func (s *Store) TempPatterns() []string {
	var out []string
	for _, p := range []string{s.location, s.backup} {
		id, err := digest.NormalizePath(p)
		if err != nil {
			continue
		}
		dir, base := path.Split(id)
		out = append(out, dir+quoteMeta(base)+tempInfix+"*")
	}
	return out
}

// quoteMeta escapes the doublestar metacharacters in a literal name.
func quoteMeta(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load reads and validates the manifest.
//
// A missing file is NotInitialized. Bytes that do not decode into a valid
// document are CorruptManifest. Any other read failure is IOFailure.
func (s *Store) Load() (*Manifest, error) {
	m, err := s.read(s.location)
	if err != nil {
		return nil, err
	}
	s.observer.Observe(types.Event{
		Type:  types.EventManifestLoaded,
		Path:  s.location,
		Count: m.Len(),
	})
	return m, nil
}

// LoadBackup reads the backup generation with the same validation as Load.
func (s *Store) LoadBackup() (*Manifest, error) {
	return s.read(s.backup)
}

func (s *Store) read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewError(types.KindNotInitialized, "load", path, err)
		}
		return nil, types.NewError(types.KindIOFailure, "load", path, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, types.NewError(types.KindCorruptManifest, "load", path, err)
	}
	return m, nil
}

// Save replaces the manifest with m.
//
// The new document is written and synced to a temporary file beside the
// manifest first; a failure there leaves the existing manifest untouched.
// The current manifest is then preserved as the backup generation, and the
// temporary file is renamed into place. A failed backup is reported to the
// observer as a warning and does not stop the save.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return types.NewError(types.KindPersistFailure, "save", s.location, fmt.Errorf("acquiring lock: %w", err))
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	data, err := Encode(m)
	if err != nil {
		return types.NewError(types.KindPersistFailure, "save", s.location, err)
	}

	tmpPath, err := s.writeTemp(data)
	if err != nil {
		return types.NewError(types.KindPersistFailure, "save", s.location, err)
	}

	if err := s.preserve(); err != nil {
		s.observer.Observe(types.Event{
			Type:    types.EventWarning,
			Path:    s.backup,
			Message: "failed to back up previous manifest",
			Err:     err,
		})
	}

	if err := os.Rename(tmpPath, s.location); err != nil {
		_ = os.Remove(tmpPath)
		return types.NewError(types.KindPersistFailure, "save", s.location, fmt.Errorf("replacing manifest: %w", err))
	}
	syncDir(filepath.Dir(s.location))

	s.observer.Observe(types.Event{
		Type:  types.EventManifestSaved,
		Path:  s.location,
		Count: m.Len(),
	})
	return nil
}

// writeTemp writes data to a new file in the manifest directory and syncs it.
func (s *Store) writeTemp(data []byte) (string, error) {
	dir := filepath.Dir(s.location)
	f, err := os.CreateTemp(dir, filepath.Base(s.location)+tempInfix+"*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("setting permissions: %w", err)
	}
	return tmpPath, nil
}

// preserve makes the current manifest the backup generation, replacing any
// older backup. The live file stays in place throughout.
func (s *Store) preserve() error {
	if _, err := os.Lstat(s.location); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := os.Remove(s.backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing old backup: %w", err)
	}
	if err := os.Link(s.location, s.backup); err == nil {
		return nil
	}
	return copyFile(s.location, s.backup)
}

// copyFile copies src to dst through a temporary file so dst is never partial.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+tempInfix+"*")
	if err != nil {
		return err
	}
	tmpPath := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
// Not every platform supports syncing a directory; errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Encode serializes m as indented JSON with paths in sorted order.
func Encode(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil manifest")
	}
	doc := *m
	if doc.Version == 0 {
		doc.Version = FormatVersion
	}
	if doc.Files == nil {
		doc.Files = map[string]types.FileSnapshot{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a manifest document.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.Files == nil {
		m.Files = map[string]types.FileSnapshot{}
	}
	for key, snap := range m.Files {
		if err := validate(key, snap); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func validate(key string, snap types.FileSnapshot) error {
	switch {
	case key == "":
		return errors.New("entry with empty path")
	case snap.Path != key:
		return fmt.Errorf("entry %q records path %q", key, snap.Path)
	case !digest.ValidDigest(snap.Digest):
		return fmt.Errorf("entry %q has invalid digest %q", key, snap.Digest)
	case snap.Size < 0:
		return fmt.Errorf("entry %q has negative size %d", key, snap.Size)
	}
	return nil
}
