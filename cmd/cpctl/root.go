package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/config"
	"github.com/epoch8/cfgrepo/internal/confstore"
	gitbackend "github.com/epoch8/cfgrepo/internal/git"
	"github.com/epoch8/cfgrepo/internal/confstore/memory"
	"github.com/epoch8/cfgrepo/internal/confstore/sqlite"
	"github.com/epoch8/cfgrepo/internal/logging"
)

var (
	flagJSON    bool
	flagVerbose bool
	flagBackend string
	flagDB      string
	flagBranch  string
	flagActor   string
	flagGitPath string
	flagRemote  string

	log  *slog.Logger
	repo confstore.Repo
)

var rootCmd = &cobra.Command{
	Use:           "cpctl",
	Short:         "Operate a branched, versioned configuration store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" || cmd.Name() == "docs" {
			return nil
		}
		if err := config.Initialize(); err != nil {
			return err
		}
		applyFlagDefaults()

		if flagVerbose {
			logConfigOverrides()
		}

		l, err := logging.New(logging.Options{FilePath: config.GetString("log.file"), Verbose: flagVerbose})
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		log = l

		r, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		repo = r
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if repo == nil {
			return nil
		}
		return repo.Close()
	},
}

// applyFlagDefaults fills any unset flag from the layered config, so
// a value set only via CFGREPO_ env var or config.yaml still reaches
// openRepo.
func applyFlagDefaults() {
	if !rootCmd.PersistentFlags().Changed("backend") {
		flagBackend = config.GetString("backend")
	}
	if !rootCmd.PersistentFlags().Changed("db") {
		flagDB = config.GetString("db")
	}
	if !rootCmd.PersistentFlags().Changed("branch") {
		flagBranch = config.GetString("branch")
	}
	if !rootCmd.PersistentFlags().Changed("actor") {
		flagActor = config.GetIdentity(flagActor)
	}
	if !rootCmd.PersistentFlags().Changed("git-path") {
		flagGitPath = config.GetString("git.path")
	}
	if !rootCmd.PersistentFlags().Changed("remote") {
		flagRemote = config.GetString("git.remote")
	}
}

// logConfigOverrides reports, for each setting cpctl reads from the
// layered config, where its effective value actually came from — the
// same "which layer won" diagnostic the wider codebase's config
// package prints under --verbose.
func logConfigOverrides() {
	settings := []string{"backend", "db", "branch", "actor", "git.path", "git.remote", "log.file", "log.verbose"}
	for _, key := range settings {
		source := config.GetValueSource(key)
		if source == config.SourceDefault {
			continue
		}
		config.LogOverride(config.ConfigOverride{
			Key:            key,
			EffectiveValue: config.Get(key),
			OverriddenBy:   source,
			OriginalSource: config.SourceDefault,
		})
	}
}

func openRepo(ctx context.Context) (confstore.Repo, error) {
	switch flagBackend {
	case "memory":
		store := memory.NewStore(nil)
		return memory.Open(store, flagBranch)
	case "sqlite":
		return sqlite.OpenFile(flagDB, flagBranch)
	case "git":
		return gitbackend.Open(ctx, flagGitPath, gitbackend.Options{RemoteURL: flagRemote, Branch: flagBranch})
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory, sqlite, or git)", flagBackend)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging to stderr")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "memory", "backend: memory, sqlite, or git")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&flagBranch, "branch", "", "branch to operate on")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "identity attributed to commits")
	rootCmd.PersistentFlags().StringVar(&flagGitPath, "git-path", "", "git backend working tree path")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "", "git backend remote URL")
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cpctl: %v\n", err)
		os.Exit(1)
	}
}
