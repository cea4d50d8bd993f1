package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/ui"
	"github.com/epoch8/cfgrepo/internal/utils"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "List, create, or switch branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return branchListCmd.RunE(cmd, args)
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE:  statusCmd.RunE,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name> [from]",
	Short: "Create a new branch without switching to it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := ""
		if len(args) == 2 {
			from = args[1]
		}
		if err := repo.CreateBranch(cmd.Context(), args[0], from); err != nil {
			return annotateMissingBranch(cmd, err)
		}
		fmt.Println(ui.Styled(ui.PassStyle, fmt.Sprintf("created branch %q", args[0])))
		return nil
	},
}

var branchSwitchCmd = &cobra.Command{
	Use:     "switch <name>",
	Aliases: []string{"checkout"},
	Short:   "Switch the current branch",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := repo.SwitchBranch(cmd.Context(), args[0]); err != nil {
			return annotateMissingBranch(cmd, err)
		}
		fmt.Println(ui.Styled(ui.PassStyle, fmt.Sprintf("switched to %q", args[0])))
		return nil
	},
}

// annotateMissingBranch adds a "did you mean" suggestion to a missing
// branch error by fuzzy-matching against the repo's known branches.
func annotateMissingBranch(cmd *cobra.Command, err error) error {
	var branchErr *confstore.BranchError
	if !errors.As(err, &branchErr) || !errors.Is(err, confstore.ErrMissingBranch) {
		return err
	}
	branches, listErr := repo.ListBranches(cmd.Context())
	if listErr != nil {
		return err
	}
	best := ""
	bestDist := -1
	for _, b := range branches {
		if !utils.FuzzyMatch(branchErr.Branch, b) {
			continue
		}
		d := utils.ComputeDistance(branchErr.Branch, b)
		if bestDist == -1 || d < bestDist {
			best, bestDist = b, d
		}
	}
	if best == "" {
		return err
	}
	return fmt.Errorf("%w (did you mean %q?)", err, best)
}

func init() {
	branchCmd.AddCommand(branchListCmd, branchCreateCmd, branchSwitchCmd)
	rootCmd.AddCommand(branchCmd)
}
