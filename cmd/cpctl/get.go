package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a key on the current branch's stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, ok, err := repo.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get %q: %w", args[0], err)
		}
		if !ok {
			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{"key": args[0], "found": false})
			}
			return fmt.Errorf("key %q not found", args[0])
		}
		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"key": args[0], "found": true, "value": string(value),
			})
		}
		os.Stdout.Write(value)
		if len(value) == 0 || value[len(value)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
