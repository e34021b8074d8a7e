package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Filter.Want)
	assert.NotEmpty(t, cfg.Filter.Keep)
	assert.Equal(t, DefaultAnnotationKey, cfg.Filter.AnnotationKey)
	assert.Equal(t, DefaultComponent, cfg.Checker.Component)
	assert.Equal(t, DefaultMaxSetupBoards, cfg.Checker.MaxSetupBoards)
	assert.Equal(t, DefaultMaxBuildPackages, cfg.Checker.MaxBuildPackages)
	assert.Equal(t, DefaultMaxEmerges, cfg.Checker.MaxEmerges)
}

func TestDefaultRulesCompile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	filter, err := cfg.Filter.BuildFilter()
	require.NoError(t, err)

	// The third_party carve-out: excluded in general, selected vendored
	// directories punched back open through ALWAYS_WANT.
	assert.True(t, filter.Want("base/files/file_util.cc"))
	assert.True(t, filter.Want("base/third_party/icu/icu_utf.h"))
	assert.False(t, filter.Want("base/third_party/libevent/event.c"))
	assert.False(t, filter.Want("base/files/BUILD.gn"))
	assert.False(t, filter.Want("base/win/registry.cc"))

	assert.True(t, filter.Keep("Android.bp"))
	assert.True(t, filter.Keep("libchrome_tools/uprev.py"))
	assert.False(t, filter.Keep("third_party/jinja2/runtime.py"))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := `filter:
  want:
    - custom/
  annotation_key: Custom-Key
checker:
  component: libbrillo
  max_emerges: 4
  boards_mapping:
    default:
      - amd64-generic
      - arm-generic
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"custom/"}, cfg.Filter.Want)
	assert.Equal(t, "Custom-Key", cfg.Filter.AnnotationKey)
	assert.Equal(t, "libbrillo", cfg.Checker.Component)
	assert.Equal(t, 4, cfg.Checker.MaxEmerges)
	assert.Equal(t, []string{"amd64-generic", "arm-generic"}, cfg.Checker.BoardsMapping["default"])
}

func TestValidateRejectsEmptyWant(t *testing.T) {
	cfg := &Config{
		Checker: CheckerConfig{MaxSetupBoards: 1, MaxBuildPackages: 1, MaxEmerges: 1},
	}

	assert.ErrorIs(t, cfg.Validate(), ErrNoWantRules)
}

func TestValidateRejectsBadCaps(t *testing.T) {
	cfg := &Config{
		Filter:  FilterConfig{Want: []string{`base/`}},
		Checker: CheckerConfig{MaxSetupBoards: 1, MaxBuildPackages: 0, MaxEmerges: 1},
	}

	assert.ErrorIs(t, cfg.Validate(), ErrBadCap)
}

func TestExpandBoards(t *testing.T) {
	cfg := CheckerConfig{BoardsMapping: map[string][]string{
		"all":     {"amd64-generic", "arm-generic", "arm64-generic"},
		"default": {"amd64-generic"},
	}}

	assert.Equal(t, []string{"amd64-generic", "arm-generic", "arm64-generic", "kukui"},
		cfg.ExpandBoards([]string{"all", "kukui"}))
	assert.Equal(t, []string{"amd64-generic"}, cfg.ExpandBoards([]string{"default"}))
}

func TestParsePathList(t *testing.T) {
	paths := ParsePathList([]byte("base/a.h\n\n  base/b.h  \n"))

	assert.Equal(t, []string{"base/a.h", "base/b.h"}, paths)
}
