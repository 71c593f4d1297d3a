// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package pace

import (
	"errors"
	"fmt"
	"time"
)

// steps is the common part of backoff strategies. Interval starts at min, is
// returned repeat times, then grows according to grow function. Interval
// never exceeds max.
type steps struct {
	min    time.Duration
	max    time.Duration
	repeat int
	grow   func(time.Duration) time.Duration

	current     time.Duration
	repeatCount int
}

func newSteps(min, max time.Duration, repeat int, grow func(time.Duration) time.Duration) (steps, error) {
	if min < 0 || max < 0 {
		return steps{}, errors.New("min and max durations should be positive")
	}
	if max <= min {
		return steps{}, fmt.Errorf("max should be greater than min (min:%v, max:%v)",
			min, max)
	}
	if repeat < 1 {
		return steps{}, errors.New("repeat needs to be at least 1")
	}
	return steps{
		min:     min,
		max:     max,
		repeat:  repeat,
		grow:    grow,
		current: min,
	}, nil
}

func (s *steps) next() time.Duration {
	if s.repeatCount < s.repeat {
		s.repeatCount++
		return s.current
	}
	s.repeatCount = 1
	s.current = s.grow(s.current)
	if s.current > s.max || s.current < 0 {
		s.current = s.max
	}
	return s.current
}

func (s *steps) reset() {
	s.current = s.min
	s.repeatCount = 0
}

// LinearBackoff implements Strategy for linear back off with possible
// repetitions. Intervals start at min, are repeated repeat times, then grow by
// step and are again repeated repeat times, until max is reached. Intervals
// stay at max until the next Reset call.
//
// For min=1ms, max=1s, step=250ms and repeat=2 consecutive NextInterval calls
// return:
//
//	1ms, 1ms, 251ms, 251ms, 501ms, 501ms, 751ms, 751ms, 1s, 1s, ...
type LinearBackoff struct {
	steps
}

// NewLinearBackoff initialize new LinearBackoff strategy. Durations should be
// non-negative, max needs to be greater than min and repeat needs to be at
// least 1. Otherwise non-nil error is returned.
func NewLinearBackoff(min, max, step time.Duration, repeat int) (*LinearBackoff, error) {
	if step < 0 {
		return nil, errors.New("step duration should be positive")
	}
	s, err := newSteps(min, max, repeat, func(d time.Duration) time.Duration {
		return d + step
	})
	if err != nil {
		return nil, err
	}
	return &LinearBackoff{steps: s}, nil
}

// NextInterval returns time duration, to pass before the next event.
func (lb *LinearBackoff) NextInterval() time.Duration { return lb.next() }

// Reset makes the next NextInterval call return min duration.
func (lb *LinearBackoff) Reset() { lb.reset() }

// ExponentialBackoff implements Strategy where interval is multiplied by
// factor after every repeat intervals, up to max.
//
// For min=10ms, max=1s, factor=2 and repeat=1:
//
//	10ms, 20ms, 40ms, 80ms, 160ms, 320ms, 640ms, 1s, 1s, ...
type ExponentialBackoff struct {
	steps
}

// NewExponentialBackoff initialize new ExponentialBackoff strategy. Parameter
// min has to be positive, max greater than min, factor greater than 1 and
// repeat at least 1.
func NewExponentialBackoff(min, max time.Duration, factor float64, repeat int) (*ExponentialBackoff, error) {
	if min <= 0 {
		return nil, errors.New("min duration should be greater than zero")
	}
	if factor <= 1.0 {
		return nil, fmt.Errorf("factor should be greater than 1, got: %v",
			factor)
	}
	s, err := newSteps(min, max, repeat, func(d time.Duration) time.Duration {
		return time.Duration(float64(d) * factor)
	})
	if err != nil {
		return nil, err
	}
	return &ExponentialBackoff{steps: s}, nil
}

// NextInterval returns time duration, to pass before the next event.
func (eb *ExponentialBackoff) NextInterval() time.Duration { return eb.next() }

// Reset makes the next NextInterval call return min duration.
func (eb *ExponentialBackoff) Reset() { eb.reset() }
