package walk

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/michaelscutari/filepwn/internal/entry"
)

// makeTree creates root/{a.txt, b.txt, sub/{c.txt, deep/d.txt}, empty/}.
func makeTree(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	for _, dir := range []string{"sub/deep", "empty"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	for _, file := range []string{"a.txt", "b.txt", "sub/c.txt", "sub/deep/d.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, file), []byte(file), 0o644))
	}
	return root
}

func join(root string, names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(root, n))
	}
	return out
}

func TestWalkFindsEveryEntryOnce(t *testing.T) {
	root := makeTree(t)

	res, err := New(nil, zaptest.NewLogger(t)).Walk(root)
	require.NoError(t, err)

	require.ElementsMatch(t, join(root, "a.txt", "b.txt", "sub/c.txt", "sub/deep/d.txt"), res.Files)
	require.ElementsMatch(t, join(root, "sub", "sub/deep", "empty"), res.Dirs)
	require.Empty(t, res.Failures)
	require.NotContains(t, res.Dirs, root)

	entries := res.Entries()
	require.Len(t, entries, 7)
	require.Equal(t, entry.KindFile, entries[0].Kind)
	require.Equal(t, entry.KindDir, entries[len(entries)-1].Kind)
}

func TestWalkIsBreadthFirst(t *testing.T) {
	root := makeTree(t)

	res, err := New(nil, nil).Walk(root)
	require.NoError(t, err)

	sub := slices.Index(res.Dirs, filepath.Join(root, "sub"))
	empty := slices.Index(res.Dirs, filepath.Join(root, "empty"))
	deep := slices.Index(res.Dirs, filepath.Join(root, "sub", "deep"))
	require.Less(t, sub, deep)
	require.Less(t, empty, deep)

	// Files at depth one come before any file at depth two or three.
	deepFile := slices.Index(res.Files, filepath.Join(root, "sub", "deep", "d.txt"))
	require.Equal(t, len(res.Files)-1, deepFile)
}

func TestWalkEmptyRoot(t *testing.T) {
	res, err := New(nil, nil).Walk(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, res.Files)
	require.Empty(t, res.Dirs)
}

func TestWalkReturnsCanonicalPaths(t *testing.T) {
	root := makeTree(t)

	res, err := New(nil, nil).Walk(filepath.Join(root, "sub", "..", "."))
	require.NoError(t, err)
	for _, p := range append(res.Files, res.Dirs...) {
		require.True(t, filepath.IsAbs(p), p)
		require.Equal(t, filepath.Clean(p), p)
	}
	require.Contains(t, res.Files, filepath.Join(root, "a.txt"))
}

func TestWalkRootThroughSymlink(t *testing.T) {
	root := makeTree(t)
	link := filepath.Join(t.TempDir(), "root-link")
	require.NoError(t, os.Symlink(root, link))

	res, err := New(nil, nil).Walk(link)
	require.NoError(t, err)
	require.Contains(t, res.Files, filepath.Join(root, "a.txt"))
}

func TestWalkIgnoresSymlinks(t *testing.T) {
	root := makeTree(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link-file")))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "sub", "loop")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))

	res, err := New(nil, nil).Walk(root)
	require.NoError(t, err)
	require.Len(t, res.Files, 4)
	require.Len(t, res.Dirs, 3)
	require.Empty(t, res.Failures)
}

func TestWalkExcludePatterns(t *testing.T) {
	root := makeTree(t)
	opts := DefaultOptions()
	require.NoError(t, opts.AddExcludePattern(`/sub$`))

	res, err := New(opts, nil).Walk(root)
	require.NoError(t, err)
	require.ElementsMatch(t, join(root, "a.txt", "b.txt"), res.Files)
	require.ElementsMatch(t, join(root, "empty"), res.Dirs)
}

func TestAddExcludePatternRejectsBadRegex(t *testing.T) {
	require.Error(t, DefaultOptions().AddExcludePattern("("))
}

func TestWalkMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	res, err := New(nil, nil).Walk(missing)
	require.Nil(t, res)

	var listErr *ListError
	require.ErrorAs(t, err, &listErr)
	require.Equal(t, missing, listErr.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWalkRootIsFile(t *testing.T) {
	root := makeTree(t)

	_, err := New(nil, nil).Walk(filepath.Join(root, "a.txt"))
	var listErr *ListError
	require.ErrorAs(t, err, &listErr)
}

// failListing lists directories normally except locked, which fails with
// a permission error.
func failListing(locked string) ReadDirFunc {
	return func(path string) ([]fs.DirEntry, error) {
		if path == locked {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
		}
		return os.ReadDir(path)
	}
}

// An unreadable directory is reported and skipped by default.
func TestWalkListSkipContinues(t *testing.T) {
	root := makeTree(t)
	locked := filepath.Join(root, "sub")
	core, logs := observer.New(zapcore.WarnLevel)

	opts := DefaultOptions().WithReadDir(failListing(locked))
	res, err := New(opts, zap.New(core)).Walk(root)
	require.NoError(t, err)

	require.ElementsMatch(t, join(root, "a.txt", "b.txt"), res.Files)
	require.ElementsMatch(t, join(root, "sub", "empty"), res.Dirs)
	require.Len(t, res.Failures, 1)
	require.Equal(t, locked, res.Failures[0].Path)
	require.Equal(t, entry.OpList, res.Failures[0].Op)
	require.Contains(t, res.Failures[0].Message, "permission denied")

	warned := logs.FilterField(zap.String("path", locked)).All()
	require.Len(t, warned, 1)
}

// With ListAbort an unreadable directory ends the walk.
func TestWalkListAbortFails(t *testing.T) {
	root := makeTree(t)
	locked := filepath.Join(root, "sub")

	opts := DefaultOptions().WithListPolicy(ListAbort).WithReadDir(failListing(locked))
	res, err := New(opts, nil).Walk(root)
	require.Nil(t, res)

	var listErr *ListError
	require.ErrorAs(t, err, &listErr)
	require.Equal(t, locked, listErr.Path)
	require.ErrorIs(t, err, fs.ErrPermission)
}

// The root listing is fatal under either policy.
func TestWalkUnlistableRootIsFatal(t *testing.T) {
	root := makeTree(t)

	for _, policy := range []ListPolicy{ListSkip, ListAbort} {
		opts := DefaultOptions().WithListPolicy(policy).WithReadDir(failListing(root))
		_, err := New(opts, nil).Walk(root)
		require.ErrorIs(t, err, fs.ErrPermission, policy.String())
	}
}

// Real permission bits, for unprivileged runs.
func TestWalkUnreadableDirectoryOnDisk(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can list directories regardless of mode")
	}
	root := makeTree(t)
	locked := filepath.Join(root, "sub")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, err := New(nil, nil).Walk(root)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	require.Equal(t, entry.OpList, res.Failures[0].Op)
}

func TestListPolicyString(t *testing.T) {
	require.Equal(t, "skip", ListSkip.String())
	require.Equal(t, "abort", ListAbort.String())
}
