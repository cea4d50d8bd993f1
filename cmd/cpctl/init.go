package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/epoch8/cfgrepo/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .cfgrepo/config.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		branch, _ := cmd.Flags().GetString("branch")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if !quiet && !cmd.Flags().Changed("backend") && ui.IsTerminal() {
			if err := runInitWizard(&backend, &branch); err != nil {
				return fmt.Errorf("setup wizard: %w", err)
			}
		}

		dir := ".cfgrepo"
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		cfgPath := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Printf("%s already exists\n", cfgPath)
			return nil
		}

		settings := map[string]any{
			"backend": backend,
			"branch":  branch,
			"db":      filepath.Join(dir, "store.db"),
			"git": map[string]any{
				"path":   filepath.Join(dir, "repo"),
				"remote": "",
			},
			"log": map[string]any{
				"file":    filepath.Join(dir, "cpctl.log"),
				"verbose": false,
			},
		}

		out, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := os.WriteFile(cfgPath, out, 0o640); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}

		fmt.Printf("Initialized %s with backend %q\n", cfgPath, backend)
		return nil
	},
}

func init() {
	initCmd.Flags().String("backend", "sqlite", "backend to configure: memory, sqlite, or git")
	initCmd.Flags().String("branch", "master", "initial branch name")
	initCmd.Flags().BoolP("quiet", "q", false, "skip the interactive setup wizard")
	rootCmd.AddCommand(initCmd)
}

// runInitWizard prompts for the backend and branch when init is run
// interactively without an explicit --backend, mirroring the
// terminal-gated setup wizard pattern used elsewhere in this codebase.
func runInitWizard(backend, branch *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("cpctl setup").
				Description("Configure the backend this working directory's config store uses."),
			huh.NewSelect[string]().
				Title("Backend").
				Description("memory is ephemeral (testing only); sqlite and git persist to disk.").
				Options(
					huh.NewOption("sqlite (local database file)", "sqlite"),
					huh.NewOption("git (versioned working tree, optionally pushed to a remote)", "git"),
					huh.NewOption("memory (ephemeral, for experimentation)", "memory"),
				).
				Value(backend),
			huh.NewInput().
				Title("Initial branch").
				Value(branch),
		),
	)
	return form.Run()
}
