// Package main provides the entry point for the pkgcheck parallel
// verifier: it builds every package depending on the upgraded component
// across a matrix of boards and reports a failure matrix.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forklift/internal/checker"
	"github.com/Sumatoshi-tech/forklift/internal/config"
	"github.com/Sumatoshi-tech/forklift/internal/observability"
)

// Sentinel errors for flag validation.
var (
	errSkipFirstPassNeedsSkipSetup = errors.New(
		"--skip-setup-board must be set for --skip-first-pass-build-packages")
	errForceCleanConflictsSkip = errors.New(
		"--force-clean-buildroot cannot be combined with the skip flags")
)

func main() {
	var (
		boards      []string
		outputDir   string
		configPath  string
		metricsAddr string

		allowOutputExists bool
		skipSetupBoard    bool
		skipFirstPass     bool
		forceCleanBuild   bool

		maxBuildPackages int
		maxEmerges       int
	)

	rootCmd := &cobra.Command{
		Use:   "pkgcheck",
		Short: "Build packages checker - verify dependents across boards",
		Long: `Pkgcheck builds every package depending on the upgraded component, on
every requested board, in maximum-parallelism dependency order, and
writes per-package failure logs and a failure matrix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			if skipFirstPass && !skipSetupBoard {
				return errSkipFirstPassNeedsSkipSetup
			}

			if forceCleanBuild && (skipSetupBoard || skipFirstPass) {
				return errForceCleanConflictsSkip
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if maxBuildPackages > 0 {
				cfg.Checker.MaxBuildPackages = maxBuildPackages
			}

			if maxEmerges > 0 {
				cfg.Checker.MaxEmerges = maxEmerges
			}

			var metrics *observability.Metrics

			if metricsAddr != "" {
				metrics = observability.NewMetrics()
				server := metrics.Serve(metricsAddr)

				defer server.Close()
			}

			opts := checker.Options{
				OutputDir:            outputDir,
				Component:            cfg.Checker.Component,
				MaxSetupBoards:       cfg.Checker.MaxSetupBoards,
				MaxBuildPackages:     cfg.Checker.MaxBuildPackages,
				MaxEmerges:           cfg.Checker.MaxEmerges,
				SkipSetupBoard:       skipSetupBoard,
				SkipFirstPassBuild:   skipFirstPass,
				ForceCleanBuild:      forceCleanBuild,
				AllowOutputDirExists: allowOutputExists,
			}

			c, err := checker.New(cfg.Checker.ExpandBoards(boards), checker.ExecCommands{}, opts, metrics)
			if err != nil {
				return err
			}

			state := c.State()
			state.StartDisplay(os.Stdout)

			runErr := c.Run()

			state.StopDisplay()
			state.Print(os.Stdout)
			fmt.Print(state.FailedMatrix("     ", true))

			return runErr
		},
	}

	rootCmd.Flags().StringArrayVarP(&boards, "boards", "b", nil, "boards to check")
	rootCmd.Flags().StringVarP(&outputDir, "output-directory", "d", "", "output directory for failure logs")
	rootCmd.Flags().StringVar(&configPath, "config", "", "configuration file (boards mapping, caps)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&allowOutputExists, "allow-output-directory-exists", false,
		"don't error if the output directory exists")
	rootCmd.Flags().BoolVar(&skipSetupBoard, "skip-setup-board", false, "skip the setup_board phase")
	rootCmd.Flags().BoolVar(&skipFirstPass, "skip-first-pass-build-packages", false,
		"skip build_packages with the stable component")
	rootCmd.Flags().BoolVar(&forceCleanBuild, "force-clean-buildroot", false,
		"force clean the /build/$BOARD directories")
	rootCmd.Flags().IntVar(&maxBuildPackages, "max-build-packages", 0,
		"maximum parallelism for build_packages")
	rootCmd.Flags().IntVar(&maxEmerges, "max-emerges", 0, "maximum parallelism for emerges")

	_ = rootCmd.MarkFlagRequired("boards")
	_ = rootCmd.MarkFlagRequired("output-directory")

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
