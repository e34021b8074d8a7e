package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forklift/internal/observability"
	"github.com/Sumatoshi-tech/forklift/internal/rewrite"
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

// addLookForward is the compression window enabled automatically when an
// exact-path filter file drives the run: it collapses submit-then-revert
// runs while importing the history of a small file set.
const addLookForward = 1000

// NewFilterCommand returns the `forklift filter` command: rewrite
// upstream history onto the filtered branch.
func NewFilterCommand() *cobra.Command {
	var (
		repoDir     string
		configPath  string
		filterFiles string
		metaName    string
		metricsAddr string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "filter <parent_filtered> <goal_browser>",
		Short: "Rewrite upstream history onto the filtered branch",
		Long: `Filter walks the upstream commits between the branch's original-commit
cursor and <goal_browser> and reproduces them on the filtered branch on
top of <parent_filtered>, restricted to the configured path subset. The
new branch head is printed to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			info, verbose := setupLogging()

			cfg, filter, err := buildFilter(configPath, filterFiles)
			if err != nil {
				return err
			}

			if metaName == "" {
				metaName = cfg.Filter.AnnotationKey
			}

			opts := []rewrite.Option{
				rewrite.WithObserver(rewrite.NewConsoleObserver(info, verbose)),
			}

			if filterFiles != "" {
				opts = append(opts, rewrite.WithLookForward(addLookForward))
			}

			if dryRun {
				opts = append(opts, rewrite.WithDryRun())
			}

			if metricsAddr != "" {
				metrics := observability.NewMetrics()
				server := metrics.Serve(metricsAddr)

				defer server.Close()

				opts = append(opts, rewrite.WithMetrics(metrics))
			}

			rewriter := rewrite.New(gitcli.NewRunner(repoDir), filter, metaName, opts...)

			head, err := rewriter.Run(gitcli.Hash(args[0]), gitcli.Hash(args[1]))
			if err != nil {
				return err
			}

			fmt.Println(head)

			return nil
		},
	}

	cmd.Flags().StringVar(&repoDir, "repo", ".", "git repository to operate on")
	cmd.Flags().StringVar(&configPath, "config", "", "configuration file overriding the built-in filter rules")
	cmd.Flags().StringVar(&filterFiles, "filter_files", "",
		"file of line-separated exact paths overriding the pattern lists")
	cmd.Flags().StringVar(&metaName, "commit_hash_meta_name", "",
		"annotation key for the original commit hash")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
	cmd.Flags().BoolVar(&dryRun, "dry_run", false, "walk and report without creating commits")

	return cmd
}
