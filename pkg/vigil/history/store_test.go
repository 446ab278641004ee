package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAppend_AssignsIDAndTime(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	s.now = func() time.Time { return base }

	rec, err := s.Append(Record{Command: "check", Root: "/srv"})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.True(t, rec.Time.Equal(base))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "check", got.Command)
	assert.Equal(t, "/srv", got.Root)
	assert.True(t, got.Time.Equal(base))
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	for i, cmd := range []string{"init", "check", "update"} {
		_, err := s.Append(Record{ID: cmd, Command: cmd, Time: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "update", all[0].Command)
	assert.Equal(t, "check", all[1].Command)
	assert.Equal(t, "init", all[2].Command)

	limited, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "update", limited[0].Command)
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	all, err := s.List(10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGet_Prefix(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	_, err := s.Append(Record{ID: "abc123", Command: "check", Time: base})
	require.NoError(t, err)
	_, err = s.Append(Record{ID: "abd456", Command: "update", Time: base.Add(time.Second)})
	require.NoError(t, err)

	got, err := s.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ID)

	_, err = s.Get("ab")
	assert.True(t, errors.Is(err, ErrAmbiguous))

	_, err = s.Get("zzz")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Get("")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClean(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	s.now = func() time.Time { return base }

	for i, age := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		_, err := s.Append(Record{ID: string(rune('a' + i)), Time: base.Add(-age)})
		require.NoError(t, err)
	}

	n, err := s.Clean(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "c", remaining[0].ID)
	assert.Equal(t, "b", remaining[1].ID)

	n, err = s.Clean(0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()
	at := base.Add(123 * time.Nanosecond)
	key := MakeKey(at, "id-1")

	gotTime, gotID, err := ParseKey(key)
	require.NoError(t, err)
	assert.True(t, gotTime.Equal(at))
	assert.Equal(t, "id-1", gotID)

	_, _, err = ParseKey([]byte("bogus"))
	assert.Error(t, err)

	assert.Less(t, string(MakeKey(base, "z")), string(MakeKey(base.Add(time.Second), "a")))
}

func TestFromReport(t *testing.T) {
	t.Parallel()
	rep := &report.Report{
		Command:     report.CommandCheck,
		Root:        "/srv",
		Manifest:    "/srv/hashes.json",
		GeneratedAt: base,
		Duration:    time.Second,
		Results:     []types.DiffResult{{Path: "/srv/a", Modified: true}, {Path: "/srv/b"}},
		Missing:     []string{"/srv/c"},
		Skipped:     []types.SkippedFile{{Path: "/srv/d"}},
	}
	rec := FromReport(rep)
	assert.Equal(t, "check", rec.Command)
	assert.Equal(t, 2, rec.Checked)
	assert.Equal(t, 1, rec.Modified)
	assert.Equal(t, 1, rec.Missing)
	assert.Equal(t, 1, rec.Skipped)
	assert.True(t, rec.Succeeded())

	failed := Failed(report.CommandCheck, "/srv", "/srv/hashes.json", base, errors.New("manifest not initialized"))
	assert.False(t, failed.Succeeded())
	assert.Equal(t, "manifest not initialized", failed.Error)
}
