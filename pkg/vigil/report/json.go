package report

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// document is the structure shared by the json and yaml formatters.
type document struct {
	Meta      documentMeta        `json:"meta" yaml:"meta"`
	Results   []types.DiffResult  `json:"results,omitempty" yaml:"results,omitempty"`
	Missing   []string            `json:"missing,omitempty" yaml:"missing,omitempty"`
	Untracked []string            `json:"untracked,omitempty" yaml:"untracked,omitempty"`
	Skipped   []types.SkippedFile `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

type documentMeta struct {
	Command     Command   `json:"command" yaml:"command"`
	Root        string    `json:"root" yaml:"root"`
	Manifest    string    `json:"manifest" yaml:"manifest"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Duration    string    `json:"duration" yaml:"duration"`
	Checked     int       `json:"checked" yaml:"checked"`
	Modified    int       `json:"modified" yaml:"modified"`
	Recorded    int       `json:"recorded,omitempty" yaml:"recorded,omitempty"`
	TotalSize   int64     `json:"total_size,omitempty" yaml:"total_size,omitempty"`
}

func buildDocument(r *Report) document {
	return document{
		Meta: documentMeta{
			Command:     r.Command,
			Root:        r.Root,
			Manifest:    r.Manifest,
			GeneratedAt: r.GeneratedAt,
			Duration:    r.Duration.String(),
			Checked:     r.Checked(),
			Modified:    r.ModifiedCount(),
			Recorded:    r.Recorded,
			TotalSize:   r.RecordedSize,
		},
		Results:   r.Results,
		Missing:   r.Missing,
		Untracked: r.Untracked,
		Skipped:   r.Skipped,
	}
}

// JSONFormatter formats the report as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
