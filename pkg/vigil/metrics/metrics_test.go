package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

func TestObserve_Check(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(&report.Report{
		Command:     report.CommandCheck,
		Root:        "/srv",
		GeneratedAt: time.Unix(1700000000, 0),
		Duration:    2 * time.Second,
		Results: []types.DiffResult{
			{Path: "/srv/a", Modified: true},
			{Path: "/srv/b"},
		},
		Missing: []string{"/srv/c"},
		Skipped: []types.SkippedFile{{Path: "/srv/d"}},
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(r.files.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.modified.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.missing.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.untracked.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.skipped.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.duration.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(r.lastRun.WithLabelValues("check", "/srv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.success.WithLabelValues("check", "/srv")))
}

func TestObserve_Update(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(&report.Report{Command: report.CommandUpdate, Root: "/srv", Recorded: 3, RecordedSize: 42})

	assert.Equal(t, float64(3), testutil.ToFloat64(r.files.WithLabelValues("update", "/srv")))
	assert.Equal(t, float64(42), testutil.ToFloat64(r.bytes.WithLabelValues("update", "/srv")))
}

func TestObserveFailure(t *testing.T) {
	t.Parallel()
	r := New()
	r.ObserveFailure(report.CommandCheck, "/srv")
	assert.Equal(t, float64(0), testutil.ToFloat64(r.success.WithLabelValues("check", "/srv")))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(&report.Report{
		Command: report.CommandCheck,
		Root:    "/srv",
		Results: []types.DiffResult{{Path: "/srv/a", Modified: true}},
	})

	path := filepath.Join(t.TempDir(), "textfile", "vigil.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# TYPE vigil_files_modified gauge")
	assert.Contains(t, content, `vigil_files_modified{command="check",root="/srv"} 1`)
}
