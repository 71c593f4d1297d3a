// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ppacer/throttle/db"
)

// HistoryOptions holds flags of the history command.
type HistoryOptions struct {
	*RootOptions
	RunId string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded by throttle run --db (or --postgres).

Without --run the latest runs are listed, the latest first. With --run a
single run is shown together with all of its iterations.

Example:
  throttle history --db runs.db --limit 5
  throttle history --db runs.db --run 2f1c... --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showHistory(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RunId, "run", "", "show single run with its iterations")
	f.Int("limit", defaults.History.Limit, "number of latest runs, negative means all")
	f.String("format", defaults.History.Format, "output format (text|json|yaml)")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cfg := opts.Config
	libLogger := slogBridge(opts.Logger)
	client, err := openClient(cfg.DB, libLogger)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open history database", err)
	}
	if client == nil {
		return WrapExitError(ExitCommandError, "no history database",
			errors.New("either --db or --postgres has to be set"))
	}
	defer client.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	format := cfg.History.Format

	if opts.RunId == "" {
		runs, rErr := client.ReadRuns(ctx, cfg.History.Limit)
		if rErr != nil {
			return WrapExitError(ExitCommandError, "cannot read runs", rErr)
		}
		return writeRuns(out, format, runs)
	}

	run, rErr := client.ReadRun(ctx, opts.RunId)
	if errors.Is(rErr, db.ErrRunNotFound) {
		return WrapExitError(ExitFailure, "run "+opts.RunId+" not found", rErr)
	}
	if rErr != nil {
		return WrapExitError(ExitCommandError, "cannot read run", rErr)
	}
	its, iErr := client.ReadIterations(ctx, opts.RunId)
	if iErr != nil {
		return WrapExitError(ExitCommandError, "cannot read iterations", iErr)
	}
	return writeRunDetails(out, format, runDetails{Run: run, History: its})
}
