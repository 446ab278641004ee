// Package reconciler orchestrates the manifest engine: it builds manifests
// from a tree, persists them and verifies a tree against the stored baseline.
//
// Files are digested by a bounded worker pool. Each worker hands its result
// to a single aggregator goroutine, so collection needs no shared locks and
// no result is lost. Results are sorted by path before they are returned.
package reconciler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/vigil/pkg/vigil/digest"
	"github.com/jamesainslie/vigil/pkg/vigil/diff"
	"github.com/jamesainslie/vigil/pkg/vigil/manifest"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
	"github.com/jamesainslie/vigil/pkg/vigil/walker"
)

// DefaultWorkers is used when Options.Workers is unset.
const DefaultWorkers = 4

// Store is the manifest persistence used by the reconciler.
type Store interface {
	Load() (*manifest.Manifest, error)
	Save(m *manifest.Manifest) error
	Location() string
}

// Digester produces snapshots of single files.
type Digester interface {
	Snapshot(path string) (types.FileSnapshot, error)
	SnapshotLink(path string) (types.FileSnapshot, error)
}

// Enumerator lists the files under a root.
type Enumerator interface {
	Enumerate(ctx context.Context, root string) iter.Seq2[walker.Entry, error]
}

// Options configures a Reconciler.
type Options struct {
	// Store loads and saves the manifest. Required.
	Store Store

	// Digester hashes files. Defaults to a digest.Engine with default options.
	Digester Digester

	// Walker enumerates trees. Defaults to a walker that skips symlinks and
	// leaves out the store's own files when the store can name them.
	Walker Enumerator

	// Workers bounds the number of files hashed at once.
	Workers int

	// Buffer is the capacity of the result channel feeding the aggregator.
	Buffer int

	// Observer receives phase and per-file events.
	Observer types.Observer

	// Now stamps manifest creation times. Defaults to time.Now.
	Now func() time.Time
}

// Reconciler runs snapshot, update and verify operations.
type Reconciler struct {
	store    Store
	digester Digester
	walker   Enumerator
	workers  int
	buffer   int
	observer types.Observer
	now      func() time.Time
}

// New validates opts and returns a Reconciler.
func New(opts Options) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, errors.New("reconciler requires a manifest store")
	}

	r := &Reconciler{
		store:    opts.Store,
		digester: opts.Digester,
		walker:   opts.Walker,
		workers:  opts.Workers,
		buffer:   opts.Buffer,
		observer: types.OrNop(opts.Observer),
		now:      opts.Now,
	}
	if r.digester == nil {
		r.digester = digest.New(digest.Options{})
	}
	if r.walker == nil {
		var wopts walker.Options
		if rp, ok := opts.Store.(interface{ ReservedPaths() []string }); ok {
			wopts.ExcludePaths = rp.ReservedPaths()
		}
		if tp, ok := opts.Store.(interface{ TempPatterns() []string }); ok {
			wopts.ExcludeNames = tp.TempPatterns()
		}
		w, err := walker.New(wopts)
		if err != nil {
			return nil, err
		}
		r.walker = w
	}
	if r.workers < 1 {
		r.workers = DefaultWorkers
	}
	if r.buffer < 1 {
		r.buffer = r.workers * 4
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// SnapshotResult is the outcome of Snapshot and Update.
type SnapshotResult struct {
	Manifest *manifest.Manifest
	Skipped  []types.SkippedFile
	Elapsed  time.Duration
}

// VerifyResult is the outcome of Verify and Diff.
type VerifyResult struct {
	// Root is the normalized tree that was checked.
	Root string
	// Location is the manifest file that was loaded, when known.
	Location string
	// Manifest is the stored baseline.
	Manifest *manifest.Manifest
	// Results has one entry per stored file found in the tree, by path.
	Results []types.DiffResult
	// Skipped lists files that could not be digested.
	Skipped []types.SkippedFile
	// Missing are stored paths under Root that the walk did not find.
	Missing []string
	// Untracked are files under Root with no stored entry.
	Untracked []string
	// GeneratedAt is when the verification finished.
	GeneratedAt time.Time
	Elapsed     time.Duration
}

// Checked returns the number of files compared.
func (v *VerifyResult) Checked() int {
	return len(v.Results)
}

// ModifiedCount returns the number of files whose content changed.
func (v *VerifyResult) ModifiedCount() int {
	n := 0
	for _, r := range v.Results {
		if r.Modified {
			n++
		}
	}
	return n
}

// Clean reports whether nothing changed. With strict set, missing and
// untracked files also count as changes.
func (v *VerifyResult) Clean(strict bool) bool {
	if v.ModifiedCount() > 0 {
		return false
	}
	if strict && (len(v.Missing) > 0 || len(v.Untracked) > 0) {
		return false
	}
	return true
}

// Snapshot digests every file under root and returns the resulting
// manifest. Files that fail to digest are left out and listed in Skipped.
// Nothing is written.
func (r *Reconciler) Snapshot(ctx context.Context, root string) (*SnapshotResult, error) {
	start := time.Now()
	r.phase(types.PhaseStart, root, nil)

	rootID, err := digest.NormalizePath(root)
	if err != nil {
		err = types.ClassifyIO("snapshot", root, err)
		r.phase(types.PhaseDone, root, err)
		return nil, err
	}

	r.phase(types.PhaseWalking, rootID, nil)
	batch, err := r.run(ctx, root, nil)
	if err != nil {
		r.phase(types.PhaseDone, rootID, err)
		return nil, err
	}

	r.phase(types.PhaseAggregating, rootID, nil)
	m := manifest.New(rootID, r.now(), batch.snapshots)

	r.phase(types.PhaseDone, rootID, nil)
	return &SnapshotResult{
		Manifest: m,
		Skipped:  batch.skipped,
		Elapsed:  time.Since(start),
	}, nil
}

// Update snapshots root and replaces the stored manifest with the result.
// A cancelled or failed snapshot saves nothing.
func (r *Reconciler) Update(ctx context.Context, root string) (*SnapshotResult, error) {
	res, err := r.Snapshot(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update cancelled: %w", err)
	}
	if err := r.store.Save(res.Manifest); err != nil {
		return nil, err
	}
	return res, nil
}

// Verify loads the stored manifest and compares root against it.
func (r *Reconciler) Verify(ctx context.Context, root string) (*VerifyResult, error) {
	start := time.Now()
	r.phase(types.PhaseStart, root, nil)

	r.phase(types.PhaseLoading, r.store.Location(), nil)
	m, err := r.store.Load()
	if err != nil {
		r.phase(types.PhaseDone, root, err)
		return nil, err
	}

	res, err := r.diff(ctx, root, m)
	if err != nil {
		return nil, err
	}
	res.Location = r.store.Location()
	res.Elapsed = time.Since(start)
	return res, nil
}

// Diff compares the live state of root with m. Only files that m records
// are digested.
func (r *Reconciler) Diff(ctx context.Context, root string, m *manifest.Manifest) (*VerifyResult, error) {
	start := time.Now()
	r.phase(types.PhaseStart, root, nil)
	res, err := r.diff(ctx, root, m)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (r *Reconciler) diff(ctx context.Context, root string, m *manifest.Manifest) (*VerifyResult, error) {
	rootID, err := digest.NormalizePath(root)
	if err != nil {
		err = types.ClassifyIO("verify", root, err)
		r.phase(types.PhaseDone, root, err)
		return nil, err
	}
	if m == nil {
		m = manifest.New(rootID, r.now(), nil)
	}

	r.phase(types.PhaseWalking, rootID, nil)
	batch, err := r.run(ctx, root, func(e walker.Entry) bool {
		_, ok := m.Get(e.ID)
		return ok
	})
	if err != nil {
		r.phase(types.PhaseDone, rootID, err)
		return nil, err
	}

	r.phase(types.PhaseAggregating, rootID, nil)
	results := diff.Compare(m, batch.snapshots)
	membership := diff.Partition(scope(m, rootID), batch.live)

	res := &VerifyResult{
		Root:        rootID,
		Manifest:    m,
		Results:     results,
		Skipped:     batch.skipped,
		Missing:     withoutUnder(membership.Missing, batch.skippedDirs),
		Untracked:   membership.Untracked,
		GeneratedAt: r.now().UTC(),
	}

	r.phase(types.PhaseDone, rootID, nil)
	return res, nil
}

// batch is what one pool run collected.
type batch struct {
	snapshots []types.FileSnapshot
	skipped   []types.SkippedFile
	// live holds the identity of every file the walk yielded.
	live []string
	// skippedDirs holds identities of walk failures, which may be directories
	// whose contents were never seen.
	skippedDirs []string
}

// outcome is sent from a worker to the aggregator.
type outcome struct {
	snapshot *types.FileSnapshot
	skipped  *types.SkippedFile
}

// run walks root and digests every entry accepted by filter (all entries
// when filter is nil). The context is checked before each task is handed to
// the pool; tasks already running finish normally.
func (r *Reconciler) run(ctx context.Context, root string, filter func(walker.Entry) bool) (*batch, error) {
	results := make(chan outcome, r.buffer)
	collected := &batch{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for o := range results {
			switch {
			case o.snapshot != nil:
				collected.snapshots = append(collected.snapshots, *o.snapshot)
			case o.skipped != nil:
				collected.skipped = append(collected.skipped, *o.skipped)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(r.workers)

	var (
		walkErr     error
		live        []string
		skippedDirs []string
		hashing     bool
	)

	for entry, err := range r.walker.Enumerate(ctx, root) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if entry.Path == "" {
				walkErr = err
				break
			}
			skip := types.NewSkippedFile(entry.Path, err)
			if id, idErr := digest.NormalizePath(entry.Path); idErr == nil {
				skippedDirs = append(skippedDirs, id)
			}
			r.observer.Observe(types.Event{Type: types.EventFileSkipped, Path: entry.Path, Skipped: &skip, Err: err})
			results <- outcome{skipped: &skip}
			continue
		}

		live = append(live, entry.ID)
		if filter != nil && !filter(entry) {
			continue
		}

		if !hashing {
			hashing = true
			r.phase(types.PhaseHashing, root, nil)
		}
		r.observer.Observe(types.Event{Type: types.EventFileQueued, Path: entry.Path})

		g.Go(func() error {
			results <- r.hash(entry)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-done

	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("walk of %s interrupted: %w", root, err)
	}
	if !hashing {
		r.phase(types.PhaseHashing, root, nil)
	}

	slices.SortFunc(collected.snapshots, func(a, b types.FileSnapshot) int { return cmp.Compare(a.Path, b.Path) })
	slices.SortFunc(collected.skipped, func(a, b types.SkippedFile) int { return cmp.Compare(a.Path, b.Path) })
	collected.live = live
	collected.skippedDirs = skippedDirs
	return collected, nil
}

// hash digests one entry and reports it to the observer.
func (r *Reconciler) hash(entry walker.Entry) outcome {
	var (
		snap types.FileSnapshot
		err  error
	)
	if entry.Link {
		snap, err = r.digester.SnapshotLink(entry.Path)
	} else {
		snap, err = r.digester.Snapshot(entry.Path)
	}

	if err != nil {
		skip := types.NewSkippedFile(entry.Path, err)
		r.observer.Observe(types.Event{Type: types.EventFileSkipped, Path: entry.Path, Skipped: &skip, Err: err})
		return outcome{skipped: &skip}
	}

	r.observer.Observe(types.Event{Type: types.EventFileHashed, Path: entry.Path, Snapshot: &snap})
	return outcome{snapshot: &snap}
}

func (r *Reconciler) phase(p types.Phase, path string, err error) {
	r.observer.Observe(types.Event{Type: types.EventPhase, Phase: p, Path: path, Err: err})
}

// scope returns the part of m that lies at or below root.
func scope(m *manifest.Manifest, root string) *manifest.Manifest {
	if m.Root == root {
		return m
	}
	scoped := manifest.New(root, m.CreatedAt, nil)
	for p, s := range m.Files {
		if under(p, root) {
			scoped.Files[p] = s
		}
	}
	return scoped
}

// withoutUnder drops paths at or below any of dirs.
func withoutUnder(paths, dirs []string) []string {
	if len(dirs) == 0 {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !slices.ContainsFunc(dirs, func(d string) bool { return under(p, d) }) {
			out = append(out, p)
		}
	}
	return out
}

func under(path, root string) bool {
	if path == root {
		return true
	}
	if strings.HasSuffix(root, "/") {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+"/")
}
