package report

import (
	"bytes"
	"fmt"
)

// PlainFormatter writes one "status - path" line per file, suitable for
// grep and scripts. Missing, untracked and skipped files use the same
// layout with their own status word.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	if !r.IsCheck() {
		fmt.Fprintf(w, "recorded %d files - %s\n", r.Recorded, r.Manifest)
	}
	for _, res := range r.Results {
		fmt.Fprintf(w, "%s - %s\n", Status(res), res.Path)
	}
	for _, p := range r.Missing {
		fmt.Fprintf(w, "missing - %s\n", p)
	}
	for _, p := range r.Untracked {
		fmt.Fprintf(w, "untracked - %s\n", p)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped - %s\n", s.Path)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
