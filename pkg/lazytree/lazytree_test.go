package lazytree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

func file(path, blob string) gitcli.File {
	return gitcli.File{Path: path, Mode: "100644", Blob: gitcli.Hash(blob)}
}

func mustTree(t *testing.T, repo *gitcli.MemRepo, files []gitcli.File) gitcli.Hash {
	t.Helper()

	hash, err := repo.MakeTree(files)
	require.NoError(t, err)

	return hash
}

func TestEmptyTree(t *testing.T) {
	repo := gitcli.NewMemRepo()
	tree := New(repo, gitcli.None)

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, gitcli.EmptyTreeHash, hash)
}

func TestSetRoundTrip(t *testing.T) {
	repo := gitcli.NewMemRepo()
	tree := New(repo, gitcli.None)

	files := []gitcli.File{
		file("base/a.h", "b1"),
		file("base/sub/deep/b.h", "b2"),
		file("top.txt", "b3"),
	}

	for _, f := range files {
		require.NoError(t, tree.Set(f.Path, f))
	}

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, mustTree(t, repo, files), hash)
}

func TestSetReplacesExistingEntry(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := mustTree(t, repo, []gitcli.File{file("base/a.h", "old")})
	tree := New(repo, base)

	require.NoError(t, tree.Set("base/a.h", file("base/a.h", "new")))

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, mustTree(t, repo, []gitcli.File{file("base/a.h", "new")}), hash)
}

func TestDeleteRoundTrip(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := mustTree(t, repo, []gitcli.File{
		file("base/a.h", "b1"),
		file("base/b.h", "b2"),
		file("top.txt", "b3"),
	})

	tree := New(repo, base)
	require.NoError(t, tree.Delete("base/a.h"))

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, mustTree(t, repo, []gitcli.File{
		file("base/b.h", "b2"),
		file("top.txt", "b3"),
	}), hash)
}

func TestDeleteMissingPathIsNoop(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := mustTree(t, repo, []gitcli.File{file("base/a.h", "b1")})
	tree := New(repo, base)

	require.NoError(t, tree.Delete("base/missing.h"))
	require.NoError(t, tree.Delete("nosuchdir/deep/missing.h"))

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, base, hash)
}

func TestDeleteLastFilePrunesEmptyDirectories(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := mustTree(t, repo, []gitcli.File{
		file("base/sub/only.h", "b1"),
		file("top.txt", "b2"),
	})

	tree := New(repo, base)
	require.NoError(t, tree.Delete("base/sub/only.h"))

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, mustTree(t, repo, []gitcli.File{file("top.txt", "b2")}), hash)
}

func TestHashIdempotentBetweenEdits(t *testing.T) {
	repo := gitcli.NewMemRepo()
	tree := New(repo, gitcli.None)

	require.NoError(t, tree.Set("a/b.h", file("a/b.h", "b1")))

	first, err := tree.Hash()
	require.NoError(t, err)

	second, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, first, second)

	require.NoError(t, tree.Set("a/c.h", file("a/c.h", "b2")))

	third, err := tree.Hash()
	require.NoError(t, err)

	assert.NotEqual(t, first, third)
}

func TestUntouchedSubtreesAreNotRebuilt(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := mustTree(t, repo, []gitcli.File{
		file("cold/x.h", "b1"),
		file("hot/y.h", "b2"),
	})

	tree := New(repo, base)
	require.NoError(t, tree.Set("hot/z.h", file("hot/z.h", "b3")))

	hash, err := tree.Hash()
	require.NoError(t, err)

	expected := mustTree(t, repo, []gitcli.File{
		file("cold/x.h", "b1"),
		file("hot/y.h", "b2"),
		file("hot/z.h", "b3"),
	})
	assert.Equal(t, expected, hash)
}

func TestRandomizedEditSequence(t *testing.T) {
	repo := gitcli.NewMemRepo()
	tree := New(repo, gitcli.None)

	expected := map[string]gitcli.File{}

	ops := []struct {
		del  bool
		path string
		blob string
	}{
		{false, "a/b/c.h", "1"},
		{false, "a/b/d.h", "2"},
		{false, "a/e.h", "3"},
		{true, "a/b/c.h", ""},
		{false, "f.h", "4"},
		{false, "a/b/d.h", "5"},
		{true, "missing.h", ""},
		{true, "a/e.h", ""},
	}

	for _, op := range ops {
		if op.del {
			require.NoError(t, tree.Delete(op.path))
			delete(expected, op.path)

			continue
		}

		f := file(op.path, op.blob)
		require.NoError(t, tree.Set(op.path, f))
		expected[op.path] = f
	}

	var files []gitcli.File
	for _, f := range expected {
		files = append(files, f)
	}

	hash, err := tree.Hash()
	require.NoError(t, err)

	assert.Equal(t, mustTree(t, repo, files), hash)
}
