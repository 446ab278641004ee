package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/vigil/pkg/vigil/digest"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// buildTree creates:
//
//	root/
//	  a.txt
//	  b.log
//	  sub/
//	    c.txt
//	    deep/
//	      d.txt
//	  cache/
//	    e.tmp
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"sub/deep", "cache"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	for _, f := range []string{"a.txt", "b.log", "sub/c.txt", "sub/deep/d.txt", "cache/e.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte(f), 0o644))
	}
	return root
}

func ids(t *testing.T, root string, rel ...string) []string {
	t.Helper()
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		id, err := digest.NormalizePath(filepath.Join(root, filepath.FromSlash(r)))
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func entryIDs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestPaths_Directory(t *testing.T) {
	t.Parallel()
	root := buildTree(t)

	w, err := New(Options{})
	require.NoError(t, err)

	entries, skipped, err := w.Paths(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, ids(t, root, "a.txt", "b.log", "cache/e.tmp", "sub/c.txt", "sub/deep/d.txt"), entryIDs(entries))
}

func TestPaths_Stable(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	w, err := New(Options{Workers: 4})
	require.NoError(t, err)

	first, _, err := w.Paths(context.Background(), root)
	require.NoError(t, err)
	second, _, err := w.Paths(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPaths_SingleFile(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	w, err := New(Options{})
	require.NoError(t, err)

	entries, _, err := w.Paths(context.Background(), filepath.Join(root, "sub", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, ids(t, root, "sub/c.txt"), entryIDs(entries))
}

func TestPaths_MissingRoot(t *testing.T) {
	t.Parallel()
	w, err := New(Options{})
	require.NoError(t, err)

	_, _, err = w.Paths(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestPaths_Exclude(t *testing.T) {
	t.Parallel()
	root := buildTree(t)

	tests := []struct {
		name    string
		exclude []string
		want    []string
	}{
		{
			name:    "basename glob",
			exclude: []string{"*.log"},
			want:    []string{"a.txt", "cache/e.tmp", "sub/c.txt", "sub/deep/d.txt"},
		},
		{
			name:    "directory prunes subtree",
			exclude: []string{"sub"},
			want:    []string{"a.txt", "b.log", "cache/e.tmp"},
		},
		{
			name:    "double star",
			exclude: []string{"sub/**/*.txt"},
			want:    []string{"a.txt", "b.log", "cache/e.tmp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(Options{Exclude: tt.exclude})
			require.NoError(t, err)
			entries, _, err := w.Paths(context.Background(), root)
			require.NoError(t, err)
			assert.Equal(t, ids(t, root, tt.want...), entryIDs(entries))
		})
	}
}

func TestPaths_IgnoreFile(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".vigilignore"), []byte("# caches\ncache/\n*.log\n"), 0o644))

	w, err := New(Options{IgnoreFile: ".vigilignore"})
	require.NoError(t, err)
	entries, skipped, err := w.Paths(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, ids(t, root, ".vigilignore", "a.txt", "sub/c.txt", "sub/deep/d.txt"), entryIDs(entries))
}

func TestPaths_ExcludePaths(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	excluded := ids(t, root, "a.txt")

	w, err := New(Options{ExcludePaths: excluded})
	require.NoError(t, err)
	entries, _, err := w.Paths(context.Background(), root)
	require.NoError(t, err)
	assert.NotContains(t, entryIDs(entries), excluded[0])
	assert.Len(t, entries, 4)
}

func TestPaths_ExcludeNames(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	for _, f := range []string{"hashes.json.tmp-123456", "sub/hashes.json.tmp-1", "odd[1].json.tmp-9"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(f)), []byte("partial"), 0o644))
	}
	dir := ids(t, root, ".")[0]

	w, err := New(Options{ExcludeNames: []string{
		dir + "/hashes.json.tmp-*",
		dir + `/odd\[1\].json.tmp-*`,
	}})
	require.NoError(t, err)
	entries, _, err := w.Paths(context.Background(), root)
	require.NoError(t, err)

	got := entryIDs(entries)
	assert.NotContains(t, got, ids(t, root, "hashes.json.tmp-123456")[0])
	assert.NotContains(t, got, ids(t, root, "odd[1].json.tmp-9")[0])
	assert.Contains(t, got, ids(t, root, "sub/hashes.json.tmp-1")[0], "only the store's own directory is matched")
	assert.Contains(t, got, ids(t, root, "a.txt")[0])
}

func TestPaths_Symlinks(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	if err := os.Symlink("a.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	t.Run("skip", func(t *testing.T) {
		w, err := New(Options{Symlinks: SymlinkSkip})
		require.NoError(t, err)
		entries, _, err := w.Paths(context.Background(), root)
		require.NoError(t, err)
		assert.NotContains(t, entryIDs(entries), ids(t, root, "link.txt")[0])
	})

	t.Run("hash", func(t *testing.T) {
		w, err := New(Options{Symlinks: SymlinkHash})
		require.NoError(t, err)
		entries, _, err := w.Paths(context.Background(), root)
		require.NoError(t, err)
		var found bool
		for _, e := range entries {
			if e.ID == ids(t, root, "link.txt")[0] {
				found = true
				assert.True(t, e.Link)
			}
		}
		assert.True(t, found, "link should be enumerated")
	})

	t.Run("follow", func(t *testing.T) {
		w, err := New(Options{Symlinks: SymlinkFollow})
		require.NoError(t, err)
		entries, _, err := w.Paths(context.Background(), root)
		require.NoError(t, err)
		var found bool
		for _, e := range entries {
			if e.ID == ids(t, root, "link.txt")[0] {
				found = true
				assert.False(t, e.Link)
			}
		}
		assert.True(t, found, "link target should be enumerated")
	})
}

func TestPaths_UnreadableDirectory(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := buildTree(t)
	locked := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	w, err := New(Options{})
	require.NoError(t, err)
	entries, skipped, err := w.Paths(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, ids(t, root, "a.txt", "b.log", "cache/e.tmp", "sub/c.txt"), entryIDs(entries))
	require.NotEmpty(t, skipped)
	assert.Equal(t, types.KindAccessDenied, skipped[0].Kind)
}

func TestEnumerate_EarlyBreak(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	w, err := New(Options{})
	require.NoError(t, err)

	n := 0
	for _, err := range w.Enumerate(context.Background(), root) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEnumerate_Cancelled(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	w, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = w.Paths(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Symlinks: "sometimes"})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = New(Options{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestParseSymlinkPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]SymlinkPolicy{
		"":       SymlinkSkip,
		"skip":   SymlinkSkip,
		"follow": SymlinkFollow,
		"hash":   SymlinkHash,
	} {
		got, err := ParseSymlinkPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
