package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forklift/internal/rewrite"
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
	"github.com/Sumatoshi-tech/forklift/pkg/pathfilter"
)

const annotationKey = "OriginalCommit"

func compile(t *testing.T, patterns ...string) []pathfilter.Rule {
	t.Helper()

	rules, err := pathfilter.CompileRules(patterns)
	require.NoError(t, err)

	return rules
}

func file(path, blob string) gitcli.File {
	return gitcli.File{Path: path, Mode: "100644", Blob: gitcli.Hash(blob)}
}

func author() gitcli.Signature {
	return gitcli.Signature{Name: "upstream", Email: "u@example.com", Time: "1600000000", Timezone: "+0000"}
}

// seed creates an upstream commit and a filtered head containing the
// given files, annotated with the upstream hash.
func seed(t *testing.T, repo *gitcli.MemRepo, upstreamFiles, filteredFiles []gitcli.File) (upstream, filtered gitcli.Hash) {
	t.Helper()

	upstream, err := repo.Commit(upstreamFiles, nil, author(), []byte("upstream base\n"))
	require.NoError(t, err)

	filtered, err = repo.Commit(filteredFiles, nil, author(),
		[]byte("upstream base\n\n"+annotationKey+": "+upstream.String()+"\n"))
	require.NoError(t, err)

	return upstream, filtered
}

func TestDeleteDropsNewlyUnwantedFiles(t *testing.T) {
	repo := gitcli.NewMemRepo()

	// The branch still carries legacy/ files the filter no longer wants.
	upstreamFiles := []gitcli.File{
		file("base/a.h", "b1"),
		file("legacy/old.h", "b2"),
	}
	upstream, filtered := seed(t, repo, upstreamFiles, upstreamFiles)

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	head, err := driver.Delete(filtered)
	require.NoError(t, err)
	require.NotEqual(t, filtered, head)

	files, err := repo.ListFiles(head)
	require.NoError(t, err)
	assert.Equal(t, []gitcli.File{file("base/a.h", "b1")}, files)

	meta, err := repo.Metadata(head)
	require.NoError(t, err)

	assert.Equal(t, []gitcli.Hash{filtered}, meta.Parents)
	assert.Equal(t, "Remove unnecessary files due to filter change", meta.Title())
	assert.Equal(t, []string{upstream.String()}, meta.Annotation(annotationKey))
}

func TestDeleteIsNoopWhenFilterHolds(t *testing.T) {
	repo := gitcli.NewMemRepo()

	files := []gitcli.File{file("base/a.h", "b1")}
	_, filtered := seed(t, repo, files, files)

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	head, err := driver.Delete(filtered)
	require.NoError(t, err)

	assert.Equal(t, filtered, head)
}

func TestAddIsNoopWithoutNewFiles(t *testing.T) {
	repo := gitcli.NewMemRepo()

	files := []gitcli.File{file("base/a.h", "b1")}
	_, filtered := seed(t, repo, files, files)

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	head, err := driver.Add(filtered)
	require.NoError(t, err)

	assert.Equal(t, filtered, head)
}

func TestAddImportsAndMergesNewlyWantedFiles(t *testing.T) {
	repo := gitcli.NewMemRepo()

	upstreamFiles := []gitcli.File{
		file("base/a.h", "b1"),
		file("docs/readme.md", "b2"),
	}

	// The branch predates the filter change: docs/ is missing.
	upstream, filtered := seed(t, repo, upstreamFiles, []gitcli.File{file("base/a.h", "b1")})

	filter := pathfilter.New(compile(t, `base/`, `docs/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	head, err := driver.Add(filtered)
	require.NoError(t, err)
	require.NotEqual(t, filtered, head)

	meta, err := repo.Metadata(head)
	require.NoError(t, err)

	require.Len(t, meta.Parents, 2)
	assert.Equal(t, filtered, meta.Parents[0])

	files, err := repo.ListFiles(head)
	require.NoError(t, err)
	assert.Equal(t, upstreamFiles, files)

	// The side branch carries the recovered history annotation.
	sideMeta, err := repo.Metadata(meta.Parents[1])
	require.NoError(t, err)

	assert.Equal(t, []string{upstream.String()}, sideMeta.Annotation(rewrite.RecoveredAnnotationKey))

	sideFiles, err := repo.ListFiles(meta.Parents[1])
	require.NoError(t, err)
	assert.Equal(t, []gitcli.File{file("docs/readme.md", "b2")}, sideFiles)
}

func TestForwardRejectsInconsistentHead(t *testing.T) {
	repo := gitcli.NewMemRepo()

	upstreamFiles := []gitcli.File{
		file("base/a.h", "b1"),
		file("base/b.h", "b2"),
	}

	// The head is missing base/b.h, so it cannot be filter-consistent.
	_, filtered := seed(t, repo, upstreamFiles, []gitcli.File{file("base/a.h", "b1")})

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	_, err := driver.Forward(filtered, filtered)

	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestRunComposesPhases(t *testing.T) {
	repo := gitcli.NewMemRepo()

	base := []gitcli.File{file("base/a.h", "b1")}
	upstream, filtered := seed(t, repo, base, base)

	next := append(append([]gitcli.File{}, base...), file("base/c.h", "b3"))

	target, err := repo.Commit(next, []gitcli.Hash{upstream}, author(), []byte("base: add c.h\n"))
	require.NoError(t, err)

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	head, err := driver.Run(filtered, target, All())
	require.NoError(t, err)

	files, err := repo.ListFiles(head)
	require.NoError(t, err)
	assert.Equal(t, next, files)

	meta, err := repo.Metadata(head)
	require.NoError(t, err)
	assert.Equal(t, []string{target.String()}, meta.Annotation(annotationKey))
}

func TestCursorRequiresAnnotatedAncestor(t *testing.T) {
	repo := gitcli.NewMemRepo()

	orphan, err := repo.Commit(nil, nil, author(), []byte("no annotation\n"))
	require.NoError(t, err)

	filter := pathfilter.New(compile(t, `base/`), nil, nil, nil, nil)
	driver := New(repo, filter, annotationKey)

	_, err = driver.Delete(orphan)

	assert.ErrorIs(t, err, ErrNoCursor)
}
