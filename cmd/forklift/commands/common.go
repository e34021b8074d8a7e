// Package commands implements CLI command handlers for forklift.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/forklift/internal/config"
	"github.com/Sumatoshi-tech/forklift/pkg/pathfilter"
)

// Verbosity flags shared by every command, bound by main.
var (
	Verbose bool
	Quiet   bool
)

// setupLogging configures the process logger according to the verbosity
// flags and returns the info and verbose progress streams.
func setupLogging() (info, verbose io.Writer) {
	level := slog.LevelInfo

	switch {
	case Quiet:
		level = slog.LevelError
	case Verbose:
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	info, verbose = io.Writer(os.Stderr), io.Discard

	if Quiet {
		info = io.Discard
	} else if Verbose {
		verbose = os.Stderr
	}

	return info, verbose
}

// buildFilter loads configuration and compiles the path filter. A
// non-empty filterFiles path overrides the pattern lists with the exact
// paths listed in the file, one per line.
func buildFilter(configPath, filterFiles string) (*config.Config, *pathfilter.Filter, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if filterFiles == "" {
		filter, buildErr := cfg.Filter.BuildFilter()
		if buildErr != nil {
			return nil, nil, buildErr
		}

		return cfg, filter, nil
	}

	data, err := os.ReadFile(filterFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("read filter files: %w", err)
	}

	paths := config.ParsePathList(data)

	slog.Info("filter loaded", "paths", len(paths))

	return cfg, pathfilter.NewExact(paths), nil
}
