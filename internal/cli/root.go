// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package cli implements throttle command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppacer/throttle/db"
)

// RootOptions holds global flags and state shared by all commands.
type RootOptions struct {
	ConfigFile string

	// Populated in PersistentPreRunE.
	Config *Config
	Logger zerolog.Logger
}

// NewRootCommand creates the root command of throttle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "throttle",
		Short: "Run a command repeatedly at a controlled pace",
		Long: `throttle runs a shell command repeatedly, waiting between invocations
according to a pacing discipline, until a stop condition is met.

Configuration is read from config.yaml (see --config), THROTTLE_* environment
variables and command line flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loader := NewLoader(opts.ConfigFile)
			cfg, err := loader.Load(cmd.Flags())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			opts.Logger = setupZerolog(cfg.Log, cmd.ErrOrStderr())
			if used := loader.ConfigFileUsed(); used != "" {
				opts.Logger.Debug().Str("path", used).Msg("Loaded config file")
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "path to YAML config file")
	pf.String("db", defaults.DB.Path, "path to SQLite database with run history")
	pf.String("postgres", defaults.DB.Postgres, "Postgres connection string, takes precedence over --db")
	pf.String("log-level", defaults.Log.Level, "log level (debug|info|warn|error)")
	pf.String("log-format", defaults.Log.Format, "log format (console|json)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs throttle CLI with given arguments and returns process exit
// code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	}
	return GetExitCode(err)
}

// openClient opens run history database. Nil client is returned when no
// database is configured.
func openClient(cfg DBConfig, logger *slog.Logger) (*db.Client, error) {
	switch {
	case cfg.Postgres != "":
		return db.OpenPostgresClient(cfg.Postgres, logger)
	case cfg.Path != "":
		return db.NewSqliteClient(cfg.Path, logger)
	}
	return nil, nil
}
