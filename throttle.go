// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package throttle runs a single action repeatedly at a controlled pace.

# Introduction

A run invokes the action, folds its result into an accumulator using a
reducer and then asks a condition whether it should continue. Between two
invocations the engine waits according to the configured Pacing. Exactly one
action is in flight at any time and the action is always invoked at least
once, because the condition is evaluated only after the first result was
folded.

# Pacing disciplines

  - Compensated - the wait-time function returns the desired distance between
    consecutive action starts. Duration of the action which just finished is
    subtracted from it.
  - Anchored - the wait-time function returns the delay counted from the
    moment the action finished. It receives the accumulator, the last result
    and the measured action duration.
  - Backoff - anchored pacing driven by a pace.Strategy, which is reset when
    the given condition holds.

Negative delays are treated as zero. The next invocation starts immediately
then.

# Errors

Invalid configuration is reported before any action is invoked. When the
action fails, Run returns exactly the error returned by the action. Once the
context is done no further action is invoked and Run returns ctx.Err().
*/
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Action is a unit of work invoked by Run. Iteration starts at 0 and is
// incremented by one on each invocation.
type Action[R any] func(ctx context.Context, iteration int) (R, error)

// Condition decides whether a run should continue. Run keeps invoking the
// action while Condition returns true. It receives the accumulator after the
// latest reducer application and the latest action result.
type Condition[A, R any] func(acc A, last R) bool

// Reducer folds the latest action result into the accumulator.
type Reducer[A, R any] func(acc A, last R) A

// Config configures a single run. Action, Pacing and While are required.
type Config[A, R any] struct {
	// Action is invoked once per iteration.
	Action Action[R]

	// Pacing computes the wait time before the next action invocation.
	Pacing Pacing[A, R]

	// While is evaluated after each reducer application. The run finishes
	// once it returns false.
	While Condition[A, R]

	// Reducer is optional. When nil and A is a numeric type the accumulator
	// is incremented by one on each iteration.
	Reducer Reducer[A, R]

	// Initial accumulator value. Zero value of A by default.
	Initial A

	// Clock used for measuring and waiting. Real clock by default.
	Clock clock.Clock

	// Observer is optionally notified after each iteration.
	Observer Observer

	// Logger is used for debug information about iterations. When nil,
	// default logger on WARN level (or THROTTLE_LOG_LEVEL) is used.
	Logger *slog.Logger
}

// Configuration errors returned by Validate and Run.
var (
	ErrNoAction    = errors.New("throttle: action is required")
	ErrNoPacing    = errors.New("throttle: pacing is required")
	ErrNoCondition = errors.New("throttle: while condition is required")
	ErrNoReducer   = errors.New("throttle: reducer is required for non-numeric accumulator")
)

// Validate checks if given configuration is complete. Run calls Validate
// before anything else, so calling it directly is needed only to check
// configuration upfront.
func Validate[A, R any](cfg Config[A, R]) error {
	_, err := validate(cfg)
	return err
}

func validate[A, R any](cfg Config[A, R]) (Reducer[A, R], error) {
	if cfg.Action == nil {
		return nil, ErrNoAction
	}
	if cfg.Pacing == nil || !cfg.Pacing.valid() {
		return nil, ErrNoPacing
	}
	if cfg.While == nil {
		return nil, ErrNoCondition
	}
	if cfg.Reducer != nil {
		return cfg.Reducer, nil
	}
	reducer, ok := countReducer[A, R]()
	if !ok {
		return nil, ErrNoReducer
	}
	return reducer, nil
}

// Run invokes cfg.Action repeatedly, waiting between invocations according to
// cfg.Pacing, until cfg.While returns false. Each action result is folded
// into the accumulator which is returned after the last iteration.
//
// Configuration errors are returned before the action is invoked. When the
// action returns non-nil error, Run returns zero value of A and the very same
// error. Context is passed to the action. When it's done before the next
// invocation, either while Run waits or right after the previous iteration,
// ctx.Err() is returned and the action is not invoked again. The first
// invocation does not check the context.
func Run[A, R any](ctx context.Context, cfg Config[A, R]) (A, error) {
	var zero A
	reducer, err := validate(cfg)
	if err != nil {
		return zero, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	acc := cfg.Initial
	nextStart := clk.Now()
	for idx := 0; ; idx++ {
		if delay := nextStart.Sub(clk.Now()); delay > 0 {
			logger.Debug("Waiting before next action", "iteration", idx,
				"delay", delay)
			if waitErr := wait(ctx, clk, delay); waitErr != nil {
				logger.Warn("Context done while waiting", "iteration", idx,
					"err", waitErr)
				return zero, waitErr
			}
		}
		// The wait is skipped on zero delay, so a context cancelled during
		// the previous action has to be checked here.
		if idx > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Warn("Context done before next action", "iteration", idx,
					"err", ctxErr)
				return zero, ctxErr
			}
		}

		start := clk.Now()
		last, actErr := cfg.Action(ctx, idx)
		elapsed := clk.Since(start)
		if actErr != nil {
			logger.Error("Action failed", "iteration", idx, "elapsed", elapsed,
				"err", actErr)
			observe(ctx, cfg.Observer, Iteration{
				Index:   idx,
				Start:   start,
				Elapsed: elapsed,
				Err:     actErr,
			})
			return zero, actErr
		}

		acc = reducer(acc, last)
		now := clk.Now()
		nextStart = cfg.Pacing.next(now, acc, last, elapsed)
		cont := cfg.While(acc, last)
		logger.Debug("Action finished", "iteration", idx, "elapsed", elapsed,
			"continue", cont)
		observe(ctx, cfg.Observer, Iteration{
			Index:     idx,
			Start:     start,
			Elapsed:   elapsed,
			NextDelay: max(nextStart.Sub(now), 0),
			Continue:  cont,
		})
		if !cont {
			return acc, nil
		}
	}
}

// wait blocks on a single timer for given duration or until the context is
// done. The timer is always stopped before wait returns.
func wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
