// Package cli is the operator command line for a companion's cadence engine.
// Every command runs against the same store the API uses.
package cli

import (
	"context"
	"fmt"

	"companionlife/infrastructure/config"
	"companionlife/infrastructure/di"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Store     string
	Database  string
	Companion string
	Verbose   bool
}

// NewRootCommand creates the cadencectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cadencectl",
		Short: "Inspect and drive a companion's life cadence",
		Long: `Operate the companion life engine outside the API.

Reads and commands go through the same buses the API uses, so
cadence guardrails, cooldowns and locking all apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Companion == "" {
				return NewExitError(ExitCommandError, "--companion is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store driver (memory|sqlite|dynamodb), overrides STORE_DRIVER")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database, implies --store sqlite")
	cmd.PersistentFlags().StringVarP(&opts.Companion, "companion", "c", "", "companion ID")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(NewLifeCommand(opts))
	cmd.AddCommand(NewCadenceCommand(opts))
	cmd.AddCommand(NewRequestsCommand(opts))
	cmd.AddCommand(NewAnalyticsCommand(opts))
	cmd.AddCommand(NewDayTickCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewCompleteRitualCommand(opts))

	return cmd
}

// openContainer loads the environment configuration, applies the flag
// overrides and wires the engine.
func openContainer(ctx context.Context, opts *RootOptions) (*di.Container, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	if opts.Database != "" {
		cfg.StoreDriver = config.StoreSQLite
		cfg.SQLitePath = opts.Database
	}
	if opts.Store != "" {
		cfg.StoreDriver = opts.Store
	}
	cfg.LogLevel = "error"
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	cfg.EnableMonitor = false
	if err := cfg.Validate(); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s store", cfg.StoreDriver), err)
	}
	return container, cleanup, nil
}
