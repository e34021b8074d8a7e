// Package main provides the entry point for the forklift CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forklift/cmd/forklift/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forklift",
		Short: "Forklift - maintain a filtered fork of a large upstream tree",
		Long: `Forklift reproduces upstream history on a filtered downstream branch,
commit for commit, restricted to a configured subset of paths.

Commands:
  filter    Rewrite upstream history onto the filtered branch
  branch    Run the delete/add/forward branch maintenance phases`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&commands.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&commands.Quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewFilterCommand())
	rootCmd.AddCommand(commands.NewBranchCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
