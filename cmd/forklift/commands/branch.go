package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forklift/internal/branch"
	"github.com/Sumatoshi-tech/forklift/internal/rewrite"
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

// ErrNoPhase is returned when no branch phase is selected.
var ErrNoPhase = errors.New("at least one of --all, --delete, --add, --forward is required")

// NewBranchCommand returns the `forklift branch` command: run the
// filtered-branch maintenance phases.
func NewBranchCommand() *cobra.Command {
	var (
		repoDir    string
		configPath string
		all        bool
		deletePh   bool
		addPh      bool
		forwardPh  bool
	)

	cmd := &cobra.Command{
		Use:   "branch <current> <target>",
		Short: "Run the delete/add/forward branch maintenance phases",
		Long: `Branch maintains the filtered branch across filter changes: --delete
drops newly unwanted files as one commit, --add imports and merges the
history of newly wanted files, --forward advances the branch to the
upstream <target>. --all runs the three phases in order. The resulting
head is printed to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			info, verbose := setupLogging()

			if !all && !deletePh && !addPh && !forwardPh {
				return ErrNoPhase
			}

			cfg, filter, err := buildFilter(configPath, "")
			if err != nil {
				return err
			}

			driver := branch.New(gitcli.NewRunner(repoDir), filter, cfg.Filter.AnnotationKey)
			driver.SetObserver(rewrite.NewConsoleObserver(info, verbose))

			phases := branch.Phases{
				Delete:  all || deletePh,
				Add:     all || addPh,
				Forward: all || forwardPh,
			}

			head, err := driver.Run(gitcli.Hash(args[0]), gitcli.Hash(args[1]), phases)
			if err != nil {
				return err
			}

			fmt.Println(head)

			return nil
		},
	}

	cmd.Flags().StringVar(&repoDir, "repo", ".", "git repository to operate on")
	cmd.Flags().StringVar(&configPath, "config", "", "configuration file overriding the built-in filter rules")
	cmd.Flags().BoolVar(&all, "all", false, "run all phases")
	cmd.Flags().BoolVar(&deletePh, "delete", false, "run the delete files phase")
	cmd.Flags().BoolVar(&addPh, "add", false, "run the add files phase")
	cmd.Flags().BoolVar(&forwardPh, "forward", false, "run the forward to <target> phase")

	return cmd
}
