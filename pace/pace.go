// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package pace provides stateful strategies for intervals between events.
//
// Strategies are meant for adaptive polling, where the interval grows while
// there's nothing to do and goes back to the initial value once something
// happens. They are used by throttle.Backoff pacing, but can be used on their
// own as well.
package pace

import "time"

// Strategy produces a sequence of intervals between consecutive events.
//
// NextInterval returns the duration to wait before the next event and moves
// the strategy forward. Reset brings the strategy back to its initial state,
// so the following NextInterval call returns the first interval again. It's
// usually called when an event of interest occurs.
//
// Implementations in this package are not safe for concurrent use.
type Strategy interface {
	NextInterval() time.Duration
	Reset()
}

// Fixed implements Strategy with the same interval every time. Reset does
// nothing.
type Fixed struct {
	interval time.Duration
}

// NewFixed initialize new Fixed strategy for given interval duration.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{interval: interval}
}

// NextInterval returns fixed interval duration every time.
func (f *Fixed) NextInterval() time.Duration { return f.interval }

// Reset does nothing for Fixed strategy.
func (f *Fixed) Reset() {}
