// Package manifest persists the trusted baseline of file snapshots.
package manifest

import (
	"slices"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// FormatVersion is the manifest document version written by this package.
const FormatVersion = 1

// DefaultName is the manifest file used when no location is configured.
const DefaultName = "hashes.json"

// DefaultBackupSuffix is appended to the manifest location to name the
// backup generation.
const DefaultBackupSuffix = ".bak"

// Manifest maps normalized file paths to their snapshots.
type Manifest struct {
	Version   int                           `json:"version"`
	Root      string                        `json:"root"`
	CreatedAt time.Time                     `json:"created_at"`
	Files     map[string]types.FileSnapshot `json:"files"`
}

// New builds a manifest for root from snaps. Later snapshots for the same
// path replace earlier ones.
func New(root string, createdAt time.Time, snaps []types.FileSnapshot) *Manifest {
	m := &Manifest{
		Version:   FormatVersion,
		Root:      root,
		CreatedAt: createdAt.UTC(),
		Files:     make(map[string]types.FileSnapshot, len(snaps)),
	}
	for _, s := range snaps {
		m.Files[s.Path] = s
	}
	return m
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Files)
}

// Get returns the snapshot stored for path.
func (m *Manifest) Get(path string) (types.FileSnapshot, bool) {
	s, ok := m.Files[path]
	return s, ok
}

// Paths returns the stored paths in sorted order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Snapshots returns the stored snapshots ordered by path.
func (m *Manifest) Snapshots() []types.FileSnapshot {
	out := make([]types.FileSnapshot, 0, len(m.Files))
	for _, p := range m.Paths() {
		out = append(out, m.Files[p])
	}
	return out
}

// TotalSize returns the summed size of all entries.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, s := range m.Files {
		total += s.Size
	}
	return total
}
