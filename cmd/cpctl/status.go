package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"is-dirty"},
	Short:   "Show the current branch and whether its stage has pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirty, err := repo.IsDirty(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		branches, err := repo.ListBranches(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"branch":   repo.CurrentBranch(),
				"dirty":    dirty,
				"branches": branches,
			})
		}

		fmt.Printf("branch: %s\n", ui.Styled(ui.TitleStyle, repo.CurrentBranch()))
		if dirty {
			fmt.Println(ui.Styled(ui.WarnStyle, "stage: pending changes not committed"))
		} else {
			fmt.Println(ui.Styled(ui.PassStyle, "stage: clean"))
		}
		fmt.Println("branches:")
		for _, b := range branches {
			style := ui.BranchOtherStyle
			marker := "  "
			if b == repo.CurrentBranch() {
				style = ui.BranchCurrentStyle
				marker = "* "
			}
			fmt.Println(marker + ui.Styled(style, b))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
