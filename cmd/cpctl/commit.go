package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/ui"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the current stage's pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirty, err := repo.IsDirty(cmd.Context())
		if err != nil {
			return err
		}
		if !dirty {
			fmt.Println(ui.Styled(ui.MutedStyle, "nothing to commit"))
			return nil
		}
		if err := repo.Commit(cmd.Context()); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if log != nil {
			log.Info("committed stage", "branch", repo.CurrentBranch(), "actor", flagActor)
		}
		fmt.Println(ui.Styled(ui.PassStyle, fmt.Sprintf("committed to %s", repo.CurrentBranch())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
}
