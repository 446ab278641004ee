package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// TextFormatter writes the detailed integrity report: a header with the
// generation time and totals, then one block per file. Modified files list
// their size, modification time and digest changes.
type TextFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TextFormatter) Format(w *bytes.Buffer, r *Report) error {
	if !r.IsCheck() {
		return f.formatSnapshot(w, r)
	}

	w.WriteString("File Integrity Check Report\n")
	fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	w.WriteString(strings.Repeat("-", 50) + "\n\n")

	fmt.Fprintf(w, "Total files checked: %d\n", r.Checked())
	fmt.Fprintf(w, "Modified files: %d\n\n", r.ModifiedCount())

	for _, res := range r.Results {
		fmt.Fprintf(w, "File: %s\n", res.Path)
		if !res.Modified {
			w.WriteString("Status: Unchanged\n\n")
			continue
		}
		w.WriteString("Status: Modified\n")
		w.WriteString("Changes:\n")
		if res.SizeChanged {
			fmt.Fprintf(w, "  - Size: %d -> %d bytes\n", res.Stored.Size, res.Current.Size)
		}
		if res.MtimeChanged {
			fmt.Fprintf(w, "  - Modified time: %s -> %s\n",
				res.Stored.ModifiedTime.Format(time.RFC3339Nano),
				res.Current.ModifiedTime.Format(time.RFC3339Nano))
		}
		fmt.Fprintf(w, "  - Old digest: %s\n", res.Stored.Digest)
		fmt.Fprintf(w, "  - New digest: %s\n", res.Current.Digest)
		w.WriteString("\n")
	}

	f.formatLists(w, r)
	return nil
}

func (f *TextFormatter) formatSnapshot(w *bytes.Buffer, r *Report) error {
	w.WriteString("File Integrity Manifest\n")
	fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	w.WriteString(strings.Repeat("-", 50) + "\n\n")

	fmt.Fprintf(w, "Root: %s\n", r.Root)
	fmt.Fprintf(w, "Manifest: %s\n", r.Manifest)
	fmt.Fprintf(w, "Files recorded: %d (%d bytes)\n", r.Recorded, r.RecordedSize)
	if len(r.Skipped) > 0 {
		w.WriteString("\n")
	}
	f.formatLists(w, r)
	return nil
}

func (f *TextFormatter) formatLists(w *bytes.Buffer, r *Report) {
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "Missing files: %d\n", len(r.Missing))
		for _, p := range r.Missing {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		w.WriteString("\n")
	}
	if len(r.Untracked) > 0 {
		fmt.Fprintf(w, "Untracked files: %d\n", len(r.Untracked))
		for _, p := range r.Untracked {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		w.WriteString("\n")
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped files: %d\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  - %s (%s): %s\n", s.Path, s.Kind, s.Error)
		}
		w.WriteString("\n")
	}
}

func init() {
	Register("text", func() Formatter {
		return &TextFormatter{}
	})
}

var _ Formatter = (*TextFormatter)(nil)
