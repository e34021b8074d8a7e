// Package pathfilter decides which paths are taken from the upstream
// repository (WANT rules) and which are preserved from the downstream
// repository (KEEP rules). The two resulting path sets must not
// intersect; FilterDiff enforces the invariant dynamically.
package pathfilter

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

// ErrOverlap indicates a path satisfied both the want and keep
// predicates, violating the disjointness invariant.
var ErrOverlap = errors.New("path is both wanted and kept")

// Rule matches a path. Implementations are anchored at the start of the
// path bytes.
type Rule interface {
	Match(path string) bool
}

// regexpRule matches by an anchored regular expression.
type regexpRule struct {
	re *regexp.Regexp
}

func (r regexpRule) Match(path string) bool {
	loc := r.re.FindStringIndex(path)

	return loc != nil && loc[0] == 0
}

// Regexp compiles an anchored pattern rule. The pattern is anchored at
// the start of the path; it panics on an invalid pattern, mirroring
// regexp.MustCompile for rule tables defined in configuration defaults.
func Regexp(pattern string) Rule {
	return regexpRule{re: regexp.MustCompile("^(?:" + pattern + ")")}
}

// CompileRules compiles a list of patterns, returning an error for the
// first invalid one.
func CompileRules(patterns []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}

		rules = append(rules, regexpRule{re: re})
	}

	return rules, nil
}

// ExactPaths matches a fixed set of whole paths. It backs the
// --filter_files override, where the caller supplies the exact files to
// import rather than pattern lists.
type ExactPaths map[string]struct{}

// NewExactPaths builds an ExactPaths rule from a path list.
func NewExactPaths(paths []string) ExactPaths {
	set := make(ExactPaths, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}

	return set
}

// Match reports whether path is one of the fixed paths.
func (e ExactPaths) Match(path string) bool {
	_, ok := e[path]

	return ok
}

// Filter answers the want/keep predicates over ordered rule lists.
type Filter struct {
	want        []Rule
	wantExclude []Rule
	alwaysWant  []Rule
	keep        []Rule
	keepExclude []Rule
}

// New builds a Filter from ordered rule lists. Evaluation order fixes the
// semantics: WANT sets, WANT_EXCLUDE clears, ALWAYS_WANT re-sets (it
// overrides WANT_EXCLUDE but not a missing WANT); KEEP and KEEP_EXCLUDE
// are the analogous pair.
func New(want, wantExclude, alwaysWant, keep, keepExclude []Rule) *Filter {
	return &Filter{
		want:        want,
		wantExclude: wantExclude,
		alwaysWant:  alwaysWant,
		keep:        keep,
		keepExclude: keepExclude,
	}
}

// NewExact builds a Filter that wants exactly the given paths and keeps
// nothing. Used by the ADD phase to import the history of newly-wanted
// files.
func NewExact(paths []string) *Filter {
	return New([]Rule{NewExactPaths(paths)}, nil, nil, nil, nil)
}

func matchAny(rules []Rule, path string) bool {
	for _, rule := range rules {
		if rule.Match(path) {
			return true
		}
	}

	return false
}

// Want reports whether path should be included from upstream.
func (f *Filter) Want(path string) bool {
	if !matchAny(f.want, path) {
		return false
	}

	if matchAny(f.wantExclude, path) {
		return matchAny(f.alwaysWant, path)
	}

	return true
}

// Keep reports whether path should be preserved from downstream.
func (f *Filter) Keep(path string) bool {
	return matchAny(f.keep, path) && !matchAny(f.keepExclude, path)
}

// FilterFiles returns every upstream file with a wanted path plus every
// downstream file with a kept path.
func (f *Filter) FilterFiles(downstream, upstream []gitcli.File) []gitcli.File {
	var files []gitcli.File

	for _, file := range upstream {
		if f.Want(file.Path) {
			files = append(files, file)
		}
	}

	for _, file := range downstream {
		if f.Keep(file.Path) {
			files = append(files, file)
		}
	}

	return files
}

// FilterDiff keeps each operation whose path is wanted. A kept operation
// whose path also satisfies Keep violates the disjointness invariant and
// returns ErrOverlap.
func (f *Filter) FilterDiff(diff []gitcli.Change) ([]gitcli.Change, error) {
	var filtered []gitcli.Change

	for _, change := range diff {
		if !f.Want(change.File.Path) {
			continue
		}

		if f.Keep(change.File.Path) {
			return nil, fmt.Errorf("%w: %s", ErrOverlap, change.File.Path)
		}

		filtered = append(filtered, change)
	}

	return filtered, nil
}
