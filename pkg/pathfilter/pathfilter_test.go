package pathfilter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

func rules(patterns ...string) []Rule {
	compiled, err := CompileRules(patterns)
	if err != nil {
		panic(err)
	}

	return compiled
}

func TestWantMatchesOrderedLists(t *testing.T) {
	filter := New(
		rules(`base/`, `mojo/`),
		rules(`base/(.*/)?win/.*`, `(.*/)?OWNERS$`),
		nil,
		nil, nil,
	)

	tests := []struct {
		path string
		want bool
	}{
		{"base/a.h", true},
		{"base/files/file.cc", true},
		{"mojo/core/core.cc", true},
		{"base/win/registry.cc", false},
		{"base/files/win/util.cc", false},
		{"base/OWNERS", false},
		{"url/gurl.cc", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, filter.Want(tt.path), "path %q", tt.path)
	}
}

func TestWantAnchoredAtStart(t *testing.T) {
	filter := New(rules(`base/`), nil, nil, nil, nil)

	assert.False(t, filter.Want("third_party/base/a.h"),
		"patterns must anchor at the start of the path")
}

func TestAlwaysWantOverridesExcludeOnly(t *testing.T) {
	filter := New(
		rules(`base/`),
		rules(`base/third_party/`),
		rules(`base/third_party/icu/`),
		nil, nil,
	)

	assert.True(t, filter.Want("base/third_party/icu/icu_utf.h"))
	assert.False(t, filter.Want("base/third_party/nspr/prtime.cc"))
}

func TestAlwaysWantNeedsWantMatch(t *testing.T) {
	filter := New(
		rules(`mojo/`),
		nil,
		rules(`base/hash/md5_nacl\.cc$`),
		nil, nil,
	)

	// ALWAYS_WANT overrides WANT_EXCLUDE but not a missing WANT.
	assert.False(t, filter.Want("base/hash/md5_nacl.cc"))
}

func TestKeep(t *testing.T) {
	filter := New(
		nil, nil, nil,
		rules(`[^/]*$`, `third_party/`),
		rules(`third_party/jinja2/`),
	)

	assert.True(t, filter.Keep("Android.bp"))
	assert.True(t, filter.Keep("third_party/ply/lex.py"))
	assert.False(t, filter.Keep("third_party/jinja2/runtime.py"))
	assert.False(t, filter.Keep("base/a.h"))
}

func TestFilterFilesUnionLaw(t *testing.T) {
	filter := New(
		rules(`base/`),
		nil, nil,
		rules(`[^/]*$`),
		nil,
	)

	upstream := []gitcli.File{
		{Path: "base/a.h", Mode: "100644", Blob: "b1"},
		{Path: "url/gurl.h", Mode: "100644", Blob: "b2"},
	}
	downstream := []gitcli.File{
		{Path: "Android.bp", Mode: "100644", Blob: "b3"},
		{Path: "base/local.h", Mode: "100644", Blob: "b4"},
	}

	got := filter.FilterFiles(downstream, upstream)

	assert.Equal(t, []gitcli.File{
		{Path: "base/a.h", Mode: "100644", Blob: "b1"},
		{Path: "Android.bp", Mode: "100644", Blob: "b3"},
	}, got)
}

func TestFilterDiffKeepsWantedOnly(t *testing.T) {
	filter := New(rules(`base/`), rules(`base/(.*/)?win/.*`), nil, nil, nil)

	diff := []gitcli.Change{
		{Op: gitcli.OpAdd, File: gitcli.File{Path: "base/a.h", Mode: "100644", Blob: "b1"}},
		{Op: gitcli.OpAdd, File: gitcli.File{Path: "base/win/b.h", Mode: "100644", Blob: "b2"}},
		{Op: gitcli.OpDelete, File: gitcli.File{Path: "url/gurl.h", Mode: "100644", Blob: "b3"}},
	}

	got, err := filter.FilterDiff(diff)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "base/a.h", got[0].File.Path)
}

func TestFilterDiffRejectsOverlap(t *testing.T) {
	filter := New(rules(`base/`), nil, nil, rules(`base/overlap\.h$`), nil)

	_, err := filter.FilterDiff([]gitcli.Change{
		{Op: gitcli.OpAdd, File: gitcli.File{Path: "base/overlap.h", Mode: "100644", Blob: "b1"}},
	})

	assert.True(t, errors.Is(err, ErrOverlap))
}

func TestExactPaths(t *testing.T) {
	filter := NewExact([]string{"base/a.h", "mojo/core.cc"})

	assert.True(t, filter.Want("base/a.h"))
	assert.True(t, filter.Want("mojo/core.cc"))
	assert.False(t, filter.Want("base/a.hh"))
	assert.False(t, filter.Want("base"))
	assert.False(t, filter.Keep("base/a.h"))
}

func TestCompileRulesReportsBadPattern(t *testing.T) {
	_, err := CompileRules([]string{`base/(`})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "base/(")
}
