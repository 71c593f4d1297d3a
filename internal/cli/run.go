// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppacer/throttle"
	"github.com/ppacer/throttle/db"
	"github.com/ppacer/throttle/notify"
	"github.com/ppacer/throttle/pace"
)

// EnvIteration is the name of environment variable holding index of the
// current iteration, set for every command invocation.
const EnvIteration = "THROTTLE_ITERATION"

const waitDelay = time.Second

// RunOptions holds state of the run command.
type RunOptions struct {
	*RootOptions

	// Clock overrides real clock (for testing).
	Clock clock.Clock

	// Sender overrides default notification sender, which writes ERROR logs.
	Sender notify.Sender
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a shell command repeatedly",
		Long: `Run a shell command repeatedly at a controlled pace.

The command is executed by the shell (sh -c by default). Its exit code is the
result of an iteration, so a failing command does not stop the run. The run
stops after --max-iterations iterations, when the command exits with
--until-exit-code or on interrupt. A command which cannot be started fails
the run.

Pacing disciplines:
  compensated  next command starts --interval after the previous one started
  anchored     next command starts --interval after the previous one finished
  backoff      exit code 0 starts the next command immediately, otherwise the
               wait grows from --interval up to --backoff-max

Example:
  throttle run --interval 5s --until-exit-code 0 -- curl -sf localhost:8080/health
  throttle run --discipline backoff --db runs.db -- ./drain-queue.sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.String("name", defaults.Run.Name, "name of the run stored in history")
	f.Duration("interval", defaults.Run.Interval, "wait time between commands")
	f.String("discipline", defaults.Run.Discipline, "pacing discipline (compensated|anchored|backoff)")
	f.Int("max-iterations", defaults.Run.MaxIterations, "stop after this many iterations, 0 means no limit")
	f.Int("until-exit-code", defaults.Run.UntilExitCode, "stop once the command exits with this code, -1 disables")
	f.Duration("timeout", defaults.Run.Timeout, "timeout of a single command, 0 means no timeout")
	f.String("shell", defaults.Run.Shell, "shell used to execute the command")
	f.Duration("backoff-max", defaults.Backoff.Max, "maximum wait time of backoff discipline")
	f.Duration("backoff-step", defaults.Backoff.Step, "linear backoff step, used when --backoff-factor <= 1")
	f.Float64("backoff-factor", defaults.Backoff.Factor, "exponential backoff factor")
	f.Int("backoff-repeat", defaults.Backoff.Repeat, "how many times each backoff interval is repeated")

	return cmd
}

func runCommand(cmd *cobra.Command, opts *RunOptions, command string) error {
	cfg := opts.Config
	logger := opts.Logger.With().Str("name", cfg.Run.Name).Logger()
	libLogger := slogBridge(logger)

	pacing, err := newPacing(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pacing", err)
	}
	client, err := openClient(cfg.DB, libLogger)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open history database", err)
	}
	if client != nil {
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("Error while closing database")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *db.Recorder
	if client != nil {
		recorder = db.NewRecorder(client)
		if startErr := recorder.Start(ctx, cfg.Run.Name, pacing.Discipline()); startErr != nil {
			return WrapExitError(ExitCommandError, "cannot record run", startErr)
		}
		logger = logger.With().Str("runId", recorder.RunId()).Logger()
	}
	iterations := 0
	observers := throttle.Observers{
		throttle.ObserverFunc(func(context.Context, throttle.Iteration) {
			iterations++
		}),
		logIterations(logger),
	}
	if recorder != nil {
		observers = append(observers, recorder)
	}

	logger.Info().Str("command", command).Str("discipline",
		string(pacing.Discipline())).Dur("interval", cfg.Run.Interval).
		Msg("Starting run")
	count, runErr := throttle.Run(ctx, throttle.Config[int, int]{
		Action:   shellAction(cfg.Run, command, cmd.OutOrStdout(), cmd.ErrOrStderr()),
		Pacing:   pacing,
		While:    stopCondition(cfg.Run),
		Clock:    opts.Clock,
		Observer: observers,
		Logger:   libLogger,
	})

	if recorder != nil {
		if finishErr := recorder.Finish(context.WithoutCancel(ctx), runErr); finishErr != nil {
			logger.Error().Err(finishErr).Msg("Cannot record run status")
		}
	}
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		logger.Warn().Int("iterations", iterations).Msg("Run interrupted")
		fmt.Fprintf(cmd.OutOrStdout(), "Interrupted after %d iteration(s)\n", iterations)
		return WrapExitError(ExitInterrupted,
			fmt.Sprintf("run %s interrupted", cfg.Run.Name), runErr)
	}
	if runErr != nil {
		sender := opts.Sender
		if sender == nil {
			sender = notify.NewLogsErr(libLogger)
		}
		data := notify.MsgData{
			RunName:    cfg.Run.Name,
			Discipline: cfg.Run.Discipline,
			Iterations: iterations,
			RunError:   runErr,
		}
		if recorder != nil {
			data.RunId = recorder.RunId()
		}
		notifyFailure(ctx, sender, data, libLogger)
		return WrapExitError(ExitFailure, fmt.Sprintf("run %s failed", cfg.Run.Name), runErr)
	}
	logger.Info().Int("iterations", count).Msg("Run finished")
	fmt.Fprintf(cmd.OutOrStdout(), "Finished after %d iteration(s)\n", count)
	return nil
}

// newPacing creates pacing of the configured discipline. Action results are
// exit codes.
func newPacing(cfg *Config) (throttle.Pacing[int, int], error) {
	discipline, err := throttle.ParseDiscipline(cfg.Run.Discipline)
	if err != nil {
		return nil, err
	}
	interval := cfg.Run.Interval
	switch discipline {
	case throttle.DisciplineAnchored:
		return throttle.Anchored(func(int, int, time.Duration) time.Duration {
			return interval
		}), nil
	case throttle.DisciplineBackoff:
		strategy, sErr := newStrategy(interval, cfg.Backoff)
		if sErr != nil {
			return nil, sErr
		}
		return throttle.Backoff(strategy, func(_ int, exitCode int) bool {
			return exitCode == 0
		}), nil
	}
	return throttle.Every[int, int](interval), nil
}

func newStrategy(min time.Duration, cfg BackoffConfig) (pace.Strategy, error) {
	if cfg.Factor > 1.0 {
		eb, err := pace.NewExponentialBackoff(min, cfg.Max, cfg.Factor, cfg.Repeat)
		if err != nil {
			return nil, err
		}
		return eb, nil
	}
	lb, err := pace.NewLinearBackoff(min, cfg.Max, cfg.Step, cfg.Repeat)
	if err != nil {
		return nil, err
	}
	return lb, nil
}

// stopCondition continues the run until the iteration limit is reached or
// the command exits with the expected code.
func stopCondition(cfg RunConfig) throttle.Condition[int, int] {
	return func(count, exitCode int) bool {
		if cfg.MaxIterations > 0 && count >= cfg.MaxIterations {
			return false
		}
		if cfg.UntilExitCode != NoExitCode && exitCode == cfg.UntilExitCode {
			return false
		}
		return true
	}
}

// shellAction executes the command using the configured shell. The exit code
// is the result. Command killed on timeout or interrupt results in exit code
// -1. Only failure to start the command is an error.
func shellAction(cfg RunConfig, command string, stdout, stderr io.Writer) throttle.Action[int] {
	return func(ctx context.Context, iteration int) (int, error) {
		runCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		c := exec.CommandContext(ctx, cfg.Shell, "-c", command)
		c.Stdout = stdout
		c.Stderr = stderr
		c.Env = append(os.Environ(), EnvIteration+"="+strconv.Itoa(iteration))
		// Children of the shell might keep output pipes open after the shell
		// was killed.
		c.WaitDelay = waitDelay

		err := c.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		if err != nil && runCtx.Err() != nil {
			// Interrupted before the command started or finished, the run
			// stops on the done context.
			return -1, nil
		}
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
}

// logIterations logs every finished iteration on debug level.
func logIterations(logger zerolog.Logger) throttle.ObserverFunc {
	return func(_ context.Context, it throttle.Iteration) {
		if it.Err != nil {
			logger.Error().Int("iteration", it.Index).Err(it.Err).
				Msg("Command cannot be executed")
			return
		}
		logger.Debug().Int("iteration", it.Index).Dur("elapsed", it.Elapsed).
			Dur("nextDelay", it.NextDelay).Bool("continue", it.Continue).
			Msg("Iteration finished")
	}
}

// notifyFailure sends notification about failed run. Errors are only logged,
// the run already failed.
func notifyFailure(ctx context.Context, sender notify.Sender, data notify.MsgData, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := sender.Send(ctx, notify.RunFailedTemplate(), data); err != nil {
		logger.Error("Cannot send notification", "runId", data.RunId, "err", err)
	}
}
