package dirtree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTree populates root with:
//
//	a/                (empty)
//	b/x.txt           "hello"
//	c.txt             "hello"
//	d/e/              (empty)
//	d/e2/f.bin        "other"
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d", "e"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d", "e2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "x.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "e2", "f.bin"), []byte("other"), 0o644))
}

// tempRoot returns a canonical temporary directory, so expected paths match
// on systems where the temp dir sits behind a symlink.
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

func TestReadDirectory_Classifies(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	dir, err := ReadDirectory(root)
	require.NoError(t, err)

	assert.Equal(t, root, dir.Path)
	assert.Equal(t, []string{filepath.Join(root, "c.txt")}, dir.Files)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
		filepath.Join(root, "d"),
	}, dir.Subdirectories)
}

func TestReadDirectory_SkipsSymlinks(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	if err := os.Symlink(filepath.Join(root, "c.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "b"), filepath.Join(root, "linkdir")))

	dir, err := ReadDirectory(root)
	require.NoError(t, err)

	assert.Len(t, dir.Files, 1)
	assert.Len(t, dir.Subdirectories, 3)
	assert.NotContains(t, dir.Files, filepath.Join(root, "link.txt"))
	assert.NotContains(t, dir.Subdirectories, filepath.Join(root, "linkdir"))
}

func TestReadDirectory_NotADirectory(t *testing.T) {
	root := tempRoot(t)
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := ReadDirectory(file)
	require.Error(t, err)

	var dirErr *Error
	require.True(t, errors.As(err, &dirErr))
	assert.Equal(t, OpList, dirErr.Op)
}

func TestReadDirectory_Missing(t *testing.T) {
	_, err := ReadDirectory("/nonexistent/directory")
	require.Error(t, err)

	var dirErr *Error
	require.True(t, errors.As(err, &dirErr))
	assert.Equal(t, OpResolve, dirErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuild_EveryFileExactlyOnce(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	files := tree.Files()
	assert.Equal(t, sorted(files), sorted(dedupe(files)), "no file listed twice")
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "b", "x.txt"),
		filepath.Join(root, "c.txt"),
		filepath.Join(root, "d", "e2", "f.bin"),
	}, files)

	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
		filepath.Join(root, "d"),
		filepath.Join(root, "d", "e"),
		filepath.Join(root, "d", "e2"),
	}, tree.DirectoryPaths())
}

func TestBuild_EverySubdirectoryHasOneRecord(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, dir := range tree.Directories {
		seen[dir.Path]++
	}
	for _, dir := range tree.Directories {
		assert.Equal(t, 1, seen[dir.Path], dir.Path)
		for _, sub := range dir.Subdirectories {
			assert.Equal(t, 1, seen[sub], "subdirectory %s", sub)
		}
	}
}

func TestBuild_EmptyDirectories(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	empty := tree.EmptyDirectories()
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "d", "e"),
	}, empty)

	for _, path := range empty {
		dir, ok := tree.Lookup(path)
		require.True(t, ok)
		assert.Empty(t, dir.Files)
		assert.Empty(t, dir.Subdirectories)
	}
}

func TestBuild_EmptinessDoesNotPropagate(t *testing.T) {
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "outer", "inner"), 0o755))

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "outer", "inner")}, EmptyDirectories(tree))
}

func TestBuild_ConcreteScenario(t *testing.T) {
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "x.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("hello"), 0o644))

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "a")}, tree.EmptyDirectories())
}

func TestBuild_EmptyRootIsReported(t *testing.T) {
	root := tempRoot(t)

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, tree.Directories, 1)
	assert.Equal(t, []string{root}, tree.EmptyDirectories())
	assert.Empty(t, tree.Files())
}

func TestBuild_RootNotADirectory(t *testing.T) {
	root := tempRoot(t)
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tree, err := Build(context.Background(), file)
	assert.Error(t, err)
	assert.Nil(t, tree)
}

func TestBuild_NonExistentRoot(t *testing.T) {
	tree, err := Build(context.Background(), "/nonexistent/directory")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, tree)
}

func TestBuild_CanonicalizesRoot(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	messy := root + string(filepath.Separator) + "b" + string(filepath.Separator) + ".." + string(filepath.Separator) + string(filepath.Separator)

	tree, err := Build(context.Background(), messy)
	require.NoError(t, err)
	assert.Equal(t, root, tree.Root)

	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(root))

	relTree, err := Build(context.Background(), ".")
	require.NoError(t, err)
	assert.Equal(t, sorted(tree.Files()), sorted(relTree.Files()))
}

func TestBuild_DoesNotFollowSymlinks(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	outside := tempRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644))

	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	// cycle back into the scanned region
	require.NoError(t, os.Symlink(root, filepath.Join(root, "d", "loop")))

	tree, err := Build(context.Background(), root)
	require.NoError(t, err)

	assert.Len(t, tree.Files(), 3)
	assert.Len(t, tree.Directories, 6)
	for _, f := range tree.Files() {
		assert.NotContains(t, f, outside)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	first, err := Build(context.Background(), root)
	require.NoError(t, err)
	second, err := Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, sorted(first.Files()), sorted(second.Files()))
	assert.Equal(t, sorted(first.DirectoryPaths()), sorted(second.DirectoryPaths()))
}

func TestBuild_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root")
	}

	root := tempRoot(t)
	createTestTree(t, root)

	locked := filepath.Join(root, "d")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	_, err := Build(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)

	tree, err := Build(context.Background(), root, WithContinueOnError())
	require.NoError(t, err)
	require.Len(t, tree.Skipped, 1)
	assert.Equal(t, locked, tree.Skipped[0].Path)
	assert.Len(t, tree.Files(), 2)
}

func TestBuild_Skip(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "objects", "pack"), []byte("p"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "debug.log"), []byte("l"), 0o644))

	tree, err := Build(context.Background(), root, WithSkip([]string{".git/", "*.log", "d/e2/"}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "b", "x.txt"),
		filepath.Join(root, "c.txt"),
	}, tree.Files())

	_, ok := tree.Lookup(filepath.Join(root, ".git"))
	assert.False(t, ok)

	d, ok := tree.Lookup(filepath.Join(root, "d"))
	require.True(t, ok)
	assert.Equal(t, []string{filepath.Join(root, "d", "e")}, d.Subdirectories)
}

func TestBuild_Cancelled(t *testing.T) {
	root := tempRoot(t)
	createTestTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
