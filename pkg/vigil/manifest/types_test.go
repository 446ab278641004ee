package manifest

import (
	"testing"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

func TestNew_LastSnapshotWins(t *testing.T) {
	t.Parallel()

	m := New("/r", time.Now(), []types.FileSnapshot{
		snapshot("/r/x", digestA, 1),
		snapshot("/r/x", digestB, 2),
	})
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	got, ok := m.Get("/r/x")
	if !ok || got.Digest != digestB {
		t.Errorf("Get() = %+v, %v; want later snapshot", got, ok)
	}
	if m.Version != FormatVersion {
		t.Errorf("Version = %d, want %d", m.Version, FormatVersion)
	}
}

func TestManifest_Snapshots(t *testing.T) {
	t.Parallel()

	m := New("/r", time.Now(), []types.FileSnapshot{
		snapshot("/r/c", digestA, 3),
		snapshot("/r/a", digestA, 1),
		snapshot("/r/b", digestA, 2),
	})

	snaps := m.Snapshots()
	for i, want := range []string{"/r/a", "/r/b", "/r/c"} {
		if snaps[i].Path != want {
			t.Errorf("Snapshots()[%d].Path = %q, want %q", i, snaps[i].Path, want)
		}
	}
	if m.TotalSize() != 6 {
		t.Errorf("TotalSize() = %d, want 6", m.TotalSize())
	}
	if _, ok := m.Get("/r/missing"); ok {
		t.Error("Get(missing) reported present")
	}
}
