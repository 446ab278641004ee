// Package metrics exports the outcome of vigil runs as Prometheus gauges.
// Runs are short-lived, so metrics are written to a textfile for the node
// exporter's textfile collector instead of being served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
)

// Namespace prefixes every metric name.
const Namespace = "vigil"

var labels = []string{"command", "root"}

// Recorder holds the gauges for one or more runs.
type Recorder struct {
	registry *prometheus.Registry

	files     *prometheus.GaugeVec
	modified  *prometheus.GaugeVec
	missing   *prometheus.GaugeVec
	untracked *prometheus.GaugeVec
	skipped   *prometheus.GaugeVec
	bytes     *prometheus.GaugeVec
	duration  *prometheus.GaugeVec
	lastRun   *prometheus.GaugeVec
	success   *prometheus.GaugeVec
}

// New returns a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Recorder{
		registry:  reg,
		files:     gauge("files", "Files checked or recorded by the last run"),
		modified:  gauge("files_modified", "Files whose content changed since the manifest was written"),
		missing:   gauge("files_missing", "Manifest entries not found under the root"),
		untracked: gauge("files_untracked", "Files under the root without a manifest entry"),
		skipped:   gauge("files_skipped", "Files that could not be read"),
		bytes:     gauge("recorded_bytes", "Total size of the files recorded by the last init or update"),
		duration:  gauge("run_duration_seconds", "Wall time of the last run"),
		lastRun:   gauge("last_run_timestamp_seconds", "Unix time the last run finished"),
		success:   gauge("last_run_success", "1 if the last run completed, 0 if it failed"),
	}
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Observe records a completed run.
func (r *Recorder) Observe(rep *report.Report) {
	lv := []string{string(rep.Command), rep.Root}

	if rep.IsCheck() {
		r.files.WithLabelValues(lv...).Set(float64(rep.Checked()))
		r.modified.WithLabelValues(lv...).Set(float64(rep.ModifiedCount()))
		r.missing.WithLabelValues(lv...).Set(float64(len(rep.Missing)))
		r.untracked.WithLabelValues(lv...).Set(float64(len(rep.Untracked)))
	} else {
		r.files.WithLabelValues(lv...).Set(float64(rep.Recorded))
		r.bytes.WithLabelValues(lv...).Set(float64(rep.RecordedSize))
	}
	r.skipped.WithLabelValues(lv...).Set(float64(len(rep.Skipped)))
	r.duration.WithLabelValues(lv...).Set(rep.Duration.Seconds())
	if !rep.GeneratedAt.IsZero() {
		r.lastRun.WithLabelValues(lv...).Set(float64(rep.GeneratedAt.Unix()))
	}
	r.success.WithLabelValues(lv...).Set(1)
}

// ObserveFailure records a run that ended with an error.
func (r *Recorder) ObserveFailure(cmd report.Command, root string) {
	r.success.WithLabelValues(string(cmd), root).Set(0)
}

// WriteTextfile writes all gauges to path in the Prometheus text format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
