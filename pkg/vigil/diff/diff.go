// Package diff classifies live file snapshots against a stored manifest.
package diff

import (
	"cmp"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jamesainslie/vigil/pkg/vigil/manifest"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// Compare returns one DiffResult for every snapshot in current whose path is
// present in stored, ordered by path. Snapshots without a stored entry are
// ignored. Compare does no I/O.
func Compare(stored *manifest.Manifest, current []types.FileSnapshot) []types.DiffResult {
	results := make([]types.DiffResult, 0, len(current))
	if stored == nil {
		return results
	}

	for _, cur := range current {
		old, ok := stored.Get(cur.Path)
		if !ok {
			continue
		}
		results = append(results, Entry(old, cur))
	}

	slices.SortFunc(results, func(a, b types.DiffResult) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return results
}

// Entry compares a single stored snapshot with its live counterpart.
func Entry(stored, current types.FileSnapshot) types.DiffResult {
	return types.DiffResult{
		Path:         current.Path,
		Modified:     current.Digest != stored.Digest,
		SizeChanged:  current.Size != stored.Size,
		MtimeChanged: !current.ModifiedTime.Equal(stored.ModifiedTime),
		Current:      current,
		Stored:       stored,
	}
}

// Modified returns the results whose content changed.
func Modified(results []types.DiffResult) []types.DiffResult {
	var out []types.DiffResult
	for _, r := range results {
		if r.Modified {
			out = append(out, r)
		}
	}
	return out
}

// Membership splits paths between a stored manifest and a live enumeration.
type Membership struct {
	// Tracked are paths present in both.
	Tracked []string
	// Missing are stored paths absent from the live tree.
	Missing []string
	// Untracked are live paths absent from the manifest.
	Untracked []string
}

// Partition compares the stored path set with the live one. Every slice in
// the result is sorted.
func Partition(stored *manifest.Manifest, live []string) Membership {
	storedSet := mapset.NewThreadUnsafeSet[string]()
	if stored != nil {
		for p := range stored.Files {
			storedSet.Add(p)
		}
	}
	liveSet := mapset.NewThreadUnsafeSet(live...)

	return Membership{
		Tracked:   sorted(storedSet.Intersect(liveSet)),
		Missing:   sorted(storedSet.Difference(liveSet)),
		Untracked: sorted(liveSet.Difference(storedSet)),
	}
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
