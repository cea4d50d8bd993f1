package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/confstore"
)

var setCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Stage a key for the current branch, reading value from an argument, --file, or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var value []byte
		var err error
		switch {
		case len(args) == 2:
			value = []byte(args[1])
		case file != "":
			value, err = os.ReadFile(file)
		default:
			value, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading value: %w", err)
		}

		if err := repo.Set(cmd.Context(), args[0], confstore.Blob(value), false); err != nil {
			return fmt.Errorf("set %q: %w", args[0], err)
		}
		fmt.Printf("staged %q (%d bytes)\n", args[0], len(value))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Stage a tombstone for a key on the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := repo.Set(cmd.Context(), args[0], nil, true); err != nil {
			return fmt.Errorf("delete %q: %w", args[0], err)
		}
		fmt.Printf("staged tombstone for %q\n", args[0])
		return nil
	},
}

func init() {
	setCmd.Flags().String("file", "", "read the value from this file instead of stdin")
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
}
