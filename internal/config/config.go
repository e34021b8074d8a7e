// Package config holds the runtime configuration for both binaries:
// the path filter rule lists, the boards mapping, and the verifier
// concurrency caps. Values are loaded through viper; every knob has a
// default so both tools run without a config file.
package config

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/forklift/pkg/pathfilter"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Filter  FilterConfig  `mapstructure:"filter"`
	Checker CheckerConfig `mapstructure:"checker"`
}

// FilterConfig holds the five ordered pattern lists and the annotation
// key recorded on rewritten commits.
type FilterConfig struct {
	Want        []string `mapstructure:"want"`
	WantExclude []string `mapstructure:"want_exclude"`
	AlwaysWant  []string `mapstructure:"always_want"`
	Keep        []string `mapstructure:"keep"`
	KeepExclude []string `mapstructure:"keep_exclude"`

	AnnotationKey string `mapstructure:"annotation_key"`
}

// CheckerConfig holds the verifier knobs.
type CheckerConfig struct {
	// BoardsMapping expands reserved board tokens ("all", "default")
	// into concrete board lists.
	BoardsMapping map[string][]string `mapstructure:"boards_mapping"`

	// Component is the package whose dependents are verified.
	Component string `mapstructure:"component"`

	MaxSetupBoards   int `mapstructure:"max_setup_boards"`
	MaxBuildPackages int `mapstructure:"max_build_packages"`
	MaxEmerges       int `mapstructure:"max_emerges"`
}

// Verifier concurrency defaults. setup_board mutates shared chroot state
// and stays serialized.
const (
	DefaultMaxSetupBoards   = 1
	DefaultMaxBuildPackages = 3
	DefaultMaxEmerges       = 50

	// UnitTestMaxEmerges is the lower emerge cap for runs alongside unit
	// tests. No flag or code path selects it; a run uses this cap only
	// when max_emerges is configured to this value.
	UnitTestMaxEmerges = 32
)

// DefaultAnnotationKey is the message annotation recording the upstream
// commit a filtered commit was derived from.
const DefaultAnnotationKey = "OriginalCommit"

// DefaultComponent is the package whose upgrade is being verified.
const DefaultComponent = "libchrome"

// Sentinel errors for configuration validation.
var (
	// ErrNoWantRules indicates an empty WANT list: nothing would ever
	// be imported from upstream.
	ErrNoWantRules = errors.New("filter.want must not be empty")
	// ErrBadCap indicates a non-positive concurrency cap.
	ErrBadCap = errors.New("concurrency caps must be positive")
)

// Validate checks structural invariants.
func (c *Config) Validate() error {
	if len(c.Filter.Want) == 0 {
		return ErrNoWantRules
	}

	if c.Checker.MaxSetupBoards < 1 || c.Checker.MaxBuildPackages < 1 || c.Checker.MaxEmerges < 1 {
		return ErrBadCap
	}

	return nil
}

// BuildFilter compiles the configured pattern lists into a path filter.
func (c *FilterConfig) BuildFilter() (*pathfilter.Filter, error) {
	lists := [5][]string{c.Want, c.WantExclude, c.AlwaysWant, c.Keep, c.KeepExclude}

	var compiled [5][]pathfilter.Rule

	for i, patterns := range lists {
		rules, err := pathfilter.CompileRules(patterns)
		if err != nil {
			return nil, fmt.Errorf("filter rules: %w", err)
		}

		compiled[i] = rules
	}

	return pathfilter.New(compiled[0], compiled[1], compiled[2], compiled[3], compiled[4]), nil
}

// ExpandBoards resolves requested board names through the boards
// mapping. Names without a mapping entry pass through as literal boards.
func (c *CheckerConfig) ExpandBoards(requested []string) []string {
	var boards []string

	for _, name := range requested {
		if mapped, ok := c.BoardsMapping[name]; ok {
			boards = append(boards, mapped...)
		} else {
			boards = append(boards, name)
		}
	}

	return boards
}
