// Package walker enumerates the files under a root directory for hashing.
// Directories are traversed in parallel with fastwalk; entries are delivered
// lazily as an iterator so callers can start hashing before the walk ends.
package walker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/vigil/pkg/vigil/digest"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// SymlinkPolicy decides how symbolic links found during a walk are treated.
type SymlinkPolicy string

const (
	// SymlinkSkip excludes links (and other special files) from the walk.
	SymlinkSkip SymlinkPolicy = "skip"
	// SymlinkFollow hashes link targets and descends into linked directories.
	SymlinkFollow SymlinkPolicy = "follow"
	// SymlinkHash records the link itself; its digest covers the target string.
	SymlinkHash SymlinkPolicy = "hash"
)

// ErrInvalidPolicy is returned by ParseSymlinkPolicy for unknown names.
var ErrInvalidPolicy = errors.New("invalid symlink policy")

// ParseSymlinkPolicy converts a policy name. The empty string means skip.
func ParseSymlinkPolicy(s string) (SymlinkPolicy, error) {
	switch SymlinkPolicy(s) {
	case "", SymlinkSkip:
		return SymlinkSkip, nil
	case SymlinkFollow:
		return SymlinkFollow, nil
	case SymlinkHash:
		return SymlinkHash, nil
	default:
		return "", fmt.Errorf("%w: %q (want skip, follow or hash)", ErrInvalidPolicy, s)
	}
}

// Entry is one file discovered by a walk.
type Entry struct {
	// Path is the filesystem path to open.
	Path string
	// ID is the normalized identity used as the manifest key.
	ID string
	// Link is set when the entry is a symbolic link to be hashed as a link.
	Link bool
}

// Options configures a Walker.
type Options struct {
	// Symlinks selects the symbolic link policy. Defaults to SymlinkSkip.
	Symlinks SymlinkPolicy

	// Exclude holds doublestar patterns matched against the root-relative
	// slash path and against the base name of every entry.
	Exclude []string

	// IgnoreFile is the name of a gitignore-syntax file read from the root
	// directory. Empty disables it.
	IgnoreFile string

	// ExcludePaths are files never yielded, compared by normalized identity.
	ExcludePaths []string

	// ExcludeNames are normalized paths whose base name is a doublestar
	// pattern. A file is left out when it sits in exactly that directory and
	// its name matches, e.g. "/srv/hashes.json.tmp-*".
	ExcludeNames []string

	// Workers is the number of directory reader goroutines. Zero lets
	// fastwalk choose.
	Workers int
}

// Walker enumerates regular files under a root.
type Walker struct {
	opts Options
}

// New validates opts and returns a Walker.
func New(opts Options) (*Walker, error) {
	policy, err := ParseSymlinkPolicy(string(opts.Symlinks))
	if err != nil {
		return nil, err
	}
	opts.Symlinks = policy

	if err := validatePatterns(opts.Exclude); err != nil {
		return nil, err
	}
	return &Walker{opts: opts}, nil
}

// Policy returns the effective symlink policy.
func (w *Walker) Policy() SymlinkPolicy {
	return w.opts.Symlinks
}

// Resolve makes root absolute and stats it. A missing root is NotFound.
func (w *Walker) Resolve(root string) (string, fs.FileInfo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", nil, types.ClassifyIO("walk", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, types.ClassifyIO("walk", abs, err)
	}
	return filepath.Clean(abs), info, nil
}

type item struct {
	entry Entry
	err   error
}

// Enumerate returns a lazy sequence of the files under root.
//
// A regular-file root yields exactly that file. A directory root yields every
// regular file below it in no particular order. Entries that cannot be read
// are yielded with a non-nil error and the walk continues. A root that cannot
// be resolved is yielded once with a zero Entry, which ends the sequence.
//
// Each call walks the tree afresh. Breaking out of the loop stops the walk.
func (w *Walker) Enumerate(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		abs, info, err := w.Resolve(root)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				yield(Entry{}, types.NewError(types.KindNotFound, "walk", abs, errors.New("not a regular file or directory")))
				return
			}
			id, err := digest.NormalizePath(abs)
			if err != nil {
				yield(Entry{}, types.ClassifyIO("walk", abs, err))
				return
			}
			if w.excludedPath(id) {
				return
			}
			yield(Entry{Path: abs, ID: id}, nil)
			return
		}

		walkCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		f, ruleErr := loadRules(abs, w.opts)
		items := make(chan item)

		go func() {
			defer close(items)

			if ruleErr != nil {
				if !send(walkCtx, items, item{entry: Entry{Path: ruleErr.Path}, err: ruleErr}) {
					return
				}
			}

			conf := fastwalk.Config{
				Follow:     w.opts.Symlinks == SymlinkFollow,
				NumWorkers: w.opts.Workers,
			}
			err := fastwalk.Walk(&conf, abs, w.callback(walkCtx, abs, f, items))
			if err != nil && walkCtx.Err() == nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
				send(walkCtx, items, item{entry: Entry{Path: abs}, err: types.ClassifyIO("walk", abs, err)})
			}
		}()

		for it := range items {
			if !yield(it.entry, it.err) {
				cancel()
				for range items {
				}
				return
			}
		}
	}
}

// send delivers it unless ctx is done first.
func send(ctx context.Context, ch chan<- item, it item) bool {
	select {
	case ch <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

// callback returns the fastwalk function. fastwalk invokes it from several
// goroutines at once; all shared state is read-only or behind the channel.
func (w *Walker) callback(ctx context.Context, root string, f *filter, items chan<- item) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			if !send(ctx, items, item{entry: Entry{Path: path}, err: types.ClassifyIO("walk", path, err)}) {
				return ctx.Err()
			}
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if f.matchDir(rel) {
				return fastwalk.SkipDir
			}
			return nil
		}

		if f.matchFile(rel) {
			return nil
		}

		id, idErr := digest.NormalizePath(path)
		if idErr != nil {
			return nil
		}
		if w.excludedPath(id) {
			return nil
		}

		entry, ok, entryErr := w.classify(path, id, d)
		if entryErr != nil {
			if !send(ctx, items, item{entry: Entry{Path: path, ID: id}, err: entryErr}) {
				return ctx.Err()
			}
			return nil
		}
		if !ok {
			return nil
		}
		if !send(ctx, items, item{entry: entry}) {
			return ctx.Err()
		}
		return nil
	}
}

// classify applies the symlink policy to a non-directory entry.
func (w *Walker) classify(path, id string, d fs.DirEntry) (Entry, bool, error) {
	typ := d.Type()
	if typ.IsRegular() {
		return Entry{Path: path, ID: id}, true, nil
	}
	if typ&fs.ModeSymlink == 0 {
		// Devices, sockets and pipes have no stable content.
		return Entry{}, false, nil
	}

	switch w.opts.Symlinks {
	case SymlinkHash:
		return Entry{Path: path, ID: id, Link: true}, true, nil
	case SymlinkFollow:
		info, err := os.Stat(path)
		if err != nil {
			return Entry{}, false, types.ClassifyIO("walk", path, err)
		}
		if info.Mode().IsRegular() {
			return Entry{Path: path, ID: id}, true, nil
		}
		// Linked directories are descended into by fastwalk itself.
		return Entry{}, false, nil
	default:
		return Entry{}, false, nil
	}
}

func (w *Walker) excludedPath(id string) bool {
	if slices.Contains(w.opts.ExcludePaths, id) {
		return true
	}
	dir, base := path.Split(id)
	for _, pattern := range w.opts.ExcludeNames {
		pdir, pbase := path.Split(pattern)
		if pdir != dir {
			continue
		}
		if ok, _ := doublestar.Match(pbase, base); ok {
			return true
		}
	}
	return false
}

// Paths collects a full enumeration of root, sorted by identity. The error is
// non-nil only when root itself cannot be walked or ctx is cancelled.
func (w *Walker) Paths(ctx context.Context, root string) ([]Entry, []types.SkippedFile, error) {
	var (
		entries []Entry
		skipped []types.SkippedFile
	)
	for entry, err := range w.Enumerate(ctx, root) {
		if err != nil {
			if entry.Path == "" {
				return nil, nil, err
			}
			skipped = append(skipped, types.NewSkippedFile(entry.Path, err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(skipped, func(a, b types.SkippedFile) int { return cmp.Compare(a.Path, b.Path) })
	return entries, skipped, nil
}
