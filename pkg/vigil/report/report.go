// Package report renders the outcome of vigil operations in several formats
// (text, plain, json, yaml, pretty).
//
// Formatters are kept in a registry and selected by name at runtime:
//
//	formatter, err := report.Get("text")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report.FromVerify(result)); err != nil {
//	    return err
//	}
package report

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/reconciler"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// DefaultFormat is the formatter used when none is configured.
const DefaultFormat = "text"

// Command names the operation a Report describes.
type Command string

// Commands.
const (
	CommandCheck  Command = "check"
	CommandInit   Command = "init"
	CommandUpdate Command = "update"
)

// Report is the data passed to every formatter.
type Report struct {
	Command     Command
	Root        string
	Manifest    string
	GeneratedAt time.Time
	Duration    time.Duration

	// Results holds one comparison per checked file. Empty for init and
	// update.
	Results []types.DiffResult

	// Recorded is the number of entries written by init or update.
	Recorded int
	// RecordedSize is the total size of the recorded files.
	RecordedSize int64

	Skipped   []types.SkippedFile
	Missing   []string
	Untracked []string
}

// FromVerify builds a check report.
func FromVerify(v *reconciler.VerifyResult) *Report {
	return &Report{
		Command:     CommandCheck,
		Root:        v.Root,
		Manifest:    v.Location,
		GeneratedAt: v.GeneratedAt,
		Duration:    v.Elapsed,
		Results:     v.Results,
		Skipped:     v.Skipped,
		Missing:     v.Missing,
		Untracked:   v.Untracked,
	}
}

// FromSnapshot builds an init or update report for a manifest saved at
// location.
func FromSnapshot(cmd Command, location string, s *reconciler.SnapshotResult) *Report {
	r := &Report{
		Command:  cmd,
		Manifest: location,
		Duration: s.Elapsed,
		Skipped:  s.Skipped,
	}
	if s.Manifest != nil {
		r.Root = s.Manifest.Root
		r.GeneratedAt = s.Manifest.CreatedAt
		r.Recorded = s.Manifest.Len()
		r.RecordedSize = s.Manifest.TotalSize()
	}
	return r
}

// IsCheck reports whether r describes a check.
func (r *Report) IsCheck() bool {
	return r.Command == CommandCheck
}

// Checked returns the number of compared files.
func (r *Report) Checked() int {
	return len(r.Results)
}

// ModifiedCount returns the number of files whose digest changed.
func (r *Report) ModifiedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Modified {
			n++
		}
	}
	return n
}

// Modified returns the modified results in path order.
func (r *Report) Modified() []types.DiffResult {
	var out []types.DiffResult
	for _, res := range r.Results {
		if res.Modified {
			out = append(out, res)
		}
	}
	return out
}

// Status returns the status word for a result.
func Status(res types.DiffResult) string {
	if res.Modified {
		return "modified"
	}
	return "unchanged"
}

// Formatter is the interface that all report formatters implement.
type Formatter interface {
	// Format writes r to w.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry maps format names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get builds a fresh formatter for name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown report format: %s", name)
	}
	return factory(), nil
}

// Available returns the sorted names of all registered formatters.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register is called from each formatter's init.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get looks name up in the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the registered format names, sorted.
func Available() []string {
	return DefaultRegistry.Available()
}
