// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package throttle

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ppacer/throttle/pace"
)

// Discipline names a pacing discipline.
type Discipline string

const (
	DisciplineCompensated Discipline = "compensated"
	DisciplineAnchored    Discipline = "anchored"
	DisciplineBackoff     Discipline = "backoff"
)

// ParseDiscipline parses discipline name. Non-nil error is returned for
// unknown names.
func ParseDiscipline(s string) (Discipline, error) {
	switch d := Discipline(s); d {
	case DisciplineCompensated, DisciplineAnchored, DisciplineBackoff:
		return d, nil
	}
	return "", fmt.Errorf("unknown pacing discipline %q (expected %s, %s or %s)",
		s, DisciplineCompensated, DisciplineAnchored, DisciplineBackoff)
}

// Pacing computes when the next action invocation may start. Values of this
// type can be created only by Compensated, Anchored and Backoff functions,
// exactly one discipline is used for the whole run.
type Pacing[A, R any] interface {
	// Discipline returns the name of the pacing discipline.
	Discipline() Discipline

	// next returns the earliest start time of the next action invocation.
	// It's called right after the reducer application for the iteration
	// which finished at now and took elapsed.
	next(now time.Time, acc A, last R, elapsed time.Duration) time.Time
	valid() bool
}

// Compensated creates pacing where interval is the desired duration between
// starts of consecutive action invocations. Duration of the latest action is
// subtracted from the interval, so drift does not accumulate. When the action
// took longer than the interval, the next one starts immediately.
func Compensated[A, R any](interval func(acc A, last R) time.Duration) Pacing[A, R] {
	return compensated[A, R]{interval: interval}
}

type compensated[A, R any] struct {
	interval func(A, R) time.Duration
}

func (c compensated[A, R]) Discipline() Discipline { return DisciplineCompensated }
func (c compensated[A, R]) valid() bool            { return c.interval != nil }

func (c compensated[A, R]) next(now time.Time, acc A, last R, elapsed time.Duration) time.Time {
	return now.Add(c.interval(acc, last) - elapsed)
}

// Anchored creates pacing where the next start time is fixed right after the
// action finished, as now + delay(acc, last, elapsed). Function delay sees
// the accumulator including the latest result and the latest action duration.
func Anchored[A, R any](delay func(acc A, last R, elapsed time.Duration) time.Duration) Pacing[A, R] {
	return anchored[A, R]{delay: delay}
}

type anchored[A, R any] struct {
	delay func(A, R, time.Duration) time.Duration
}

func (a anchored[A, R]) Discipline() Discipline { return DisciplineAnchored }
func (a anchored[A, R]) valid() bool            { return a.delay != nil }

func (a anchored[A, R]) next(now time.Time, acc A, last R, elapsed time.Duration) time.Time {
	return now.Add(a.delay(acc, last, elapsed))
}

// Every creates Compensated pacing with constant interval.
func Every[A, R any](interval time.Duration) Pacing[A, R] {
	return Compensated(func(A, R) time.Duration { return interval })
}

// Backoff creates anchored pacing driven by given pace.Strategy. When reset
// returns true (usually meaning the action found some work), the strategy is
// reset and the next action starts immediately. Otherwise the run waits for
// strategy's next interval. Nil reset never resets the strategy.
//
// Strategies are stateful, so a Backoff pacing should not be shared between
// concurrent runs.
func Backoff[A, R any](strategy pace.Strategy, reset Condition[A, R]) Pacing[A, R] {
	return backoff[A, R]{strategy: strategy, reset: reset}
}

type backoff[A, R any] struct {
	strategy pace.Strategy
	reset    Condition[A, R]
}

func (b backoff[A, R]) Discipline() Discipline { return DisciplineBackoff }
func (b backoff[A, R]) valid() bool            { return !isNil(b.strategy) }

// isNil reports whether the strategy is nil, including a nil pointer wrapped
// in the interface.
func isNil(s pace.Strategy) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func,
		reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (b backoff[A, R]) next(now time.Time, acc A, last R, _ time.Duration) time.Time {
	if b.reset != nil && b.reset(acc, last) {
		b.strategy.Reset()
		return now
	}
	return now.Add(b.strategy.NextInterval())
}
