// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package throttle

import (
	"context"
	"time"
)

// Iteration describes a single finished action invocation.
type Iteration struct {
	// Index of the iteration, starting from 0.
	Index int

	// Start is the time when the action was invoked.
	Start time.Time

	// Elapsed is the measured duration of the action.
	Elapsed time.Duration

	// NextDelay is how long the run is going to wait before the next
	// invocation, counted from the moment the action finished. It's zero
	// when the next action starts immediately.
	NextDelay time.Duration

	// Continue is the result of the while condition for this iteration.
	Continue bool

	// Err is non-nil when the action failed. The run is finished then.
	Err error
}

// Observer is notified synchronously after each iteration. Observers cannot
// change the course of a run, they are meant for logging, metrics and
// history.
type Observer interface {
	IterationDone(ctx context.Context, it Iteration)
}

// ObserverFunc is an adapter which allows using ordinary functions as
// Observer.
type ObserverFunc func(ctx context.Context, it Iteration)

// IterationDone calls f(ctx, it).
func (f ObserverFunc) IterationDone(ctx context.Context, it Iteration) {
	f(ctx, it)
}

// Observers fans out iteration notifications to all given observers in order.
type Observers []Observer

// IterationDone notifies every non-nil observer.
func (obs Observers) IterationDone(ctx context.Context, it Iteration) {
	for _, o := range obs {
		observe(ctx, o, it)
	}
}

func observe(ctx context.Context, o Observer, it Iteration) {
	if o == nil {
		return
	}
	o.IterationDone(ctx, it)
}
