package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/ui"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source>",
	Short: "Merge source into the current branch, source winning on conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := repo.CurrentBranch()
		if err := repo.Merge(cmd.Context(), args[0]); err != nil {
			return annotateMissingBranch(cmd, err)
		}
		if log != nil {
			log.Info("merged branch", "source", args[0], "target", target, "actor", flagActor)
		}
		fmt.Println(ui.Styled(ui.PassStyle, fmt.Sprintf("merged %q into %q", args[0], target)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
