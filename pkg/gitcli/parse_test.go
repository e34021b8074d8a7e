package gitcli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLsTree(t *testing.T) {
	out := []byte("100644 blob 8baef1b4abc478178b004d62031cf7fe6db6f903\ta.h\x00" +
		"040000 tree 4d5fcadc293a348e88f777dc0920f11e7d71441c\tbase\x00" +
		"100755 blob da39a3ee5e6b4b0d3255bfef95601890afd80709\ttool with space.sh\x00")

	entries, err := parseLsTree(out)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, TreeEntry{
		Mode: "100644", Type: "blob",
		Hash: "8baef1b4abc478178b004d62031cf7fe6db6f903", Name: "a.h",
	}, entries[0])
	assert.Equal(t, "tree", entries[1].Type)
	assert.Equal(t, "tool with space.sh", entries[2].Name)
}

func TestParseLsTreeRejectsGarbage(t *testing.T) {
	_, err := parseLsTree([]byte("not a row\x00"))

	assert.ErrorIs(t, err, ErrParse)
}

func TestParseDiffTree(t *testing.T) {
	out := []byte(":000000 100644 " + strings.Repeat("0", 40) + " 8baef1b4abc478178b004d62031cf7fe6db6f903 A\x00base/a.h\x00" +
		":100644 100644 8baef1b4abc478178b004d62031cf7fe6db6f903 da39a3ee5e6b4b0d3255bfef95601890afd80709 M\x00base/b.h\x00" +
		":100644 000000 da39a3ee5e6b4b0d3255bfef95601890afd80709 " + strings.Repeat("0", 40) + " D\x00base/c.h\x00")

	changes, err := parseDiffTree(out)
	require.NoError(t, err)

	require.Len(t, changes, 3)

	assert.Equal(t, OpAdd, changes[0].Op)
	assert.Equal(t, File{Path: "base/a.h", Mode: "100644", Blob: "8baef1b4abc478178b004d62031cf7fe6db6f903"}, changes[0].File)

	assert.Equal(t, OpReplace, changes[1].Op)
	assert.Equal(t, Hash("da39a3ee5e6b4b0d3255bfef95601890afd80709"), changes[1].File.Blob)

	// Deletes carry the source record.
	assert.Equal(t, OpDelete, changes[2].Op)
	assert.Equal(t, File{Path: "base/c.h", Mode: "100644", Blob: "da39a3ee5e6b4b0d3255bfef95601890afd80709"}, changes[2].File)
}

func TestParseDiffTreeTypeChangeIsReplace(t *testing.T) {
	out := []byte(":100644 120000 8baef1b4abc478178b004d62031cf7fe6db6f903 da39a3ee5e6b4b0d3255bfef95601890afd80709 T\x00base/link\x00")

	changes, err := parseDiffTree(out)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, OpReplace, changes[0].Op)
	assert.Equal(t, "120000", changes[0].File.Mode)
}

func TestParseCommitObject(t *testing.T) {
	raw := []byte("tree 4d5fcadc293a348e88f777dc0920f11e7d71441c\n" +
		"parent 8baef1b4abc478178b004d62031cf7fe6db6f903\n" +
		"parent da39a3ee5e6b4b0d3255bfef95601890afd80709\n" +
		"author Some Author <author@example.com> 1600000000 +0900\n" +
		"committer Bot <bot@example.com> 1600000001 +0000\n" +
		"\n" +
		"Reland \"base: do the thing\"\n" +
		"\n" +
		"Body text: not an annotation because it is not trailing.\n" +
		"\n" +
		"Bug: 12345\n" +
		"OriginalCommit: 8baef1b4abc478178b004d62031cf7fe6db6f903\n")

	meta, err := parseCommitObject(raw)
	require.NoError(t, err)

	assert.Equal(t, Hash("4d5fcadc293a348e88f777dc0920f11e7d71441c"), meta.Tree)
	assert.Equal(t, []Hash{
		"8baef1b4abc478178b004d62031cf7fe6db6f903",
		"da39a3ee5e6b4b0d3255bfef95601890afd80709",
	}, meta.Parents)
	assert.Equal(t, Signature{
		Name: "Some Author", Email: "author@example.com",
		Time: "1600000000", Timezone: "+0900",
	}, meta.Author)
	assert.Equal(t, `Reland "base: do the thing"`, meta.Title())

	assert.Equal(t, []string{"8baef1b4abc478178b004d62031cf7fe6db6f903"}, meta.Annotation("OriginalCommit"))
	assert.Equal(t, []string{"12345"}, meta.Annotation("Bug"))
	assert.Empty(t, meta.Annotation("originalcommit"), "annotation keys are case-sensitive")
}

func TestParseCommitObjectAnnotationsAreTrailingOnly(t *testing.T) {
	raw := []byte("tree 4d5fcadc293a348e88f777dc0920f11e7d71441c\n" +
		"author A <a@b> 1 +0000\n" +
		"\n" +
		"Title\n" +
		"\n" +
		"Key: mid-message value\n" +
		"interrupting line\n")

	meta, err := parseCommitObject(raw)
	require.NoError(t, err)

	assert.Empty(t, meta.Annotations)
}

func TestParseCommitObjectMultiValuedAnnotations(t *testing.T) {
	raw := []byte("tree 4d5fcadc293a348e88f777dc0920f11e7d71441c\n" +
		"author A <a@b> 1 +0000\n" +
		"\n" +
		"Title\n" +
		"\n" +
		"Reviewed-by: one\n" +
		"Reviewed-by: two\n")

	meta, err := parseCommitObject(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, meta.Annotation("Reviewed-by"))
}

func TestParseCommitObjectWithoutTreeFails(t *testing.T) {
	_, err := parseCommitObject([]byte("author A <a@b> 1 +0000\n\nTitle\n"))

	assert.ErrorIs(t, err, ErrParse)
}

func TestMemRepoRoundTrip(t *testing.T) {
	repo := NewMemRepo()

	files := []File{
		{Path: "base/a.h", Mode: "100644", Blob: "b1"},
		{Path: "base/sub/b.h", Mode: "100644", Blob: "b2"},
		{Path: "top.txt", Mode: "100644", Blob: "b3"},
	}

	commit, err := repo.Commit(files, nil,
		Signature{Name: "A", Email: "a@b", Time: "1", Timezone: "+0000"}, []byte("initial\n"))
	require.NoError(t, err)

	listed, err := repo.ListFiles(commit)
	require.NoError(t, err)
	assert.Equal(t, files, listed)

	// Canonicality: same file set, different order, same tree.
	reordered := []File{files[2], files[0], files[1]}

	tree1, err := repo.MakeTree(files)
	require.NoError(t, err)

	tree2, err := repo.MakeTree(reordered)
	require.NoError(t, err)

	assert.Equal(t, tree1, tree2)
}

func TestMemRepoDiffTree(t *testing.T) {
	repo := NewMemRepo()

	base, err := repo.Commit([]File{
		{Path: "a", Mode: "100644", Blob: "b1"},
		{Path: "b", Mode: "100644", Blob: "b2"},
	}, nil, Signature{}, []byte("base\n"))
	require.NoError(t, err)

	next, err := repo.Commit([]File{
		{Path: "b", Mode: "100644", Blob: "b2x"},
		{Path: "c", Mode: "100644", Blob: "b3"},
	}, []Hash{base}, Signature{}, []byte("next\n"))
	require.NoError(t, err)

	changes, err := repo.DiffTree(base, next)
	require.NoError(t, err)

	require.Len(t, changes, 3)
	assert.Equal(t, OpDelete, changes[0].Op)
	assert.Equal(t, "a", changes[0].File.Path)
	assert.Equal(t, OpReplace, changes[1].Op)
	assert.Equal(t, OpAdd, changes[2].Op)

	// Against the empty tree every file is an add.
	all, err := repo.DiffTree(None, base)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemRepoRevList(t *testing.T) {
	repo := NewMemRepo()

	c1, _ := repo.Commit([]File{{Path: "a", Mode: "100644", Blob: "1"}}, nil, Signature{}, []byte("c1\n"))
	c2, _ := repo.Commit([]File{{Path: "a", Mode: "100644", Blob: "2"}}, []Hash{c1}, Signature{}, []byte("c2\n"))
	c3, _ := repo.Commit([]File{{Path: "a", Mode: "100644", Blob: "3"}}, []Hash{c2}, Signature{}, []byte("c3\n"))

	entries, err := repo.RevList(c1, c3)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, c2, entries[0].Hash)
	assert.Equal(t, c3, entries[1].Hash)
	assert.Equal(t, []Hash{c2}, entries[1].Parents)

	empty, err := repo.RevList(c3, c3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
