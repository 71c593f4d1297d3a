// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package throttle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/ppacer/throttle/pace"
)

const ms = time.Millisecond

// autoClock is a mock clock which moves itself forward when a timer is
// created, so runs never block on waiting.
type autoClock struct {
	*clock.Mock
}

func newAutoClock() autoClock {
	return autoClock{Mock: clock.NewMock()}
}

func (c autoClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.Mock.Add(d)
	return t
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// iterations collects observed iterations.
type iterations struct {
	sync.Mutex
	its []Iteration
}

func (i *iterations) IterationDone(_ context.Context, it Iteration) {
	i.Lock()
	defer i.Unlock()
	i.its = append(i.its, it)
}

func (i *iterations) starts() []time.Time {
	i.Lock()
	defer i.Unlock()
	starts := make([]time.Time, len(i.its))
	for idx, it := range i.its {
		starts[idx] = it.Start
	}
	return starts
}

func requireGaps(t *testing.T, starts []time.Time, expected time.Duration) {
	t.Helper()
	for idx := 1; idx < len(starts); idx++ {
		require.Equal(t, expected, starts[idx].Sub(starts[idx-1]),
			"gap between start #%d and #%d", idx-1, idx)
	}
}

func TestRunAtLeastOnce(t *testing.T) {
	calls := 0
	res, err := Run(context.Background(), Config[int, struct{}]{
		Action: func(context.Context, int) (struct{}, error) {
			calls++
			return struct{}{}, nil
		},
		Pacing: Every[int, struct{}](10 * time.Second),
		While:  func(int, struct{}) bool { return false },
		Clock:  newAutoClock(),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res)
	require.Equal(t, 1, calls)
}

func TestRunWhileAccAndLast(t *testing.T) {
	obs := &iterations{}
	res, err := Run(context.Background(), Config[int, int]{
		Action:   func(context.Context, int) (int, error) { return 1, nil },
		Pacing:   Every[int, int](100 * ms),
		While:    func(acc, last int) bool { return acc < 10 && last > 0 },
		Clock:    newAutoClock(),
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 10, res)
	require.Len(t, obs.its, 10)
	requireGaps(t, obs.starts(), 100*ms)
}

func TestRunContinueKTimes(t *testing.T) {
	for _, k := range []int{0, 1, 2, 7, 50} {
		calls, checks := 0, 0
		res, err := Run(context.Background(), Config[int, int]{
			Action: func(context.Context, int) (int, error) {
				calls++
				return calls, nil
			},
			Pacing: Every[int, int](ms),
			While: func(int, int) bool {
				checks++
				return checks <= k
			},
			Clock:  newAutoClock(),
			Logger: testLogger(),
		})
		require.NoError(t, err)
		require.Equal(t, k+1, calls, "k=%d", k)
		require.Equal(t, k+1, res, "k=%d", k)
	}
}

type total struct {
	Total int
}

func TestRunReducerAndInitialValue(t *testing.T) {
	res, err := Run(context.Background(), Config[total, int]{
		Action: func(context.Context, int) (int, error) { return 2, nil },
		Pacing: Every[total, int](100 * ms),
		While:  func(acc total, _ int) bool { return acc.Total < 10 },
		Reducer: func(acc total, last int) total {
			acc.Total += last
			return acc
		},
		Initial: total{Total: 0},
		Clock:   newAutoClock(),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, total{Total: 10}, res)
}

func TestRunLeftFold(t *testing.T) {
	results := []string{"a", "b", "c", "d"}
	res, err := Run(context.Background(), Config[string, string]{
		Action: func(_ context.Context, idx int) (string, error) {
			return results[idx], nil
		},
		Pacing:  Every[string, string](ms),
		While:   func(acc string, _ string) bool { return len(acc) < 1+len(results) },
		Reducer: func(acc, last string) string { return acc + last },
		Initial: ">",
		Clock:   newAutoClock(),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, ">abcd", res)
}

func TestRunCollect(t *testing.T) {
	res, err := Run(context.Background(), Config[[]int, int]{
		Action:  func(_ context.Context, idx int) (int, error) { return idx * idx, nil },
		Pacing:  Every[[]int, int](ms),
		While:   func(acc []int, _ int) bool { return len(acc) < 4 },
		Reducer: Collect[int],
		Clock:   newAutoClock(),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 4, 9}, res)
}

func TestRunIterationIndex(t *testing.T) {
	var indexes []int
	_, err := Run(context.Background(), Config[int, int]{
		Action: func(_ context.Context, idx int) (int, error) {
			indexes = append(indexes, idx)
			return idx, nil
		},
		Pacing:  Every[int, int](ms),
		While:   func(acc, _ int) bool { return acc < 5 },
		Reducer: Count[int],
		Clock:   newAutoClock(),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, indexes)
}

func TestRunDurationExceedsInterval(t *testing.T) {
	clk := newAutoClock()
	obs := &iterations{}
	res, err := Run(context.Background(), Config[int, struct{}]{
		Action: func(context.Context, int) (struct{}, error) {
			clk.Add(10 * ms)
			return struct{}{}, nil
		},
		Pacing:   Every[int, struct{}](1 * ms),
		While:    func(acc int, _ struct{}) bool { return acc < 10 },
		Clock:    clk,
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 10, res)
	requireGaps(t, obs.starts(), 10*ms)
	for _, it := range obs.its {
		require.Equal(t, 10*ms, it.Elapsed)
		require.Zero(t, it.NextDelay)
	}
}

func TestRunCompensatedSubtractsElapsed(t *testing.T) {
	clk := newAutoClock()
	obs := &iterations{}
	_, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) {
			clk.Add(30 * ms)
			return 0, nil
		},
		Pacing: Compensated(func(int, int) time.Duration {
			return 100 * ms
		}),
		While:    func(acc, _ int) bool { return acc < 5 },
		Clock:    clk,
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	requireGaps(t, obs.starts(), 100*ms)
	for _, it := range obs.its {
		require.Equal(t, 70*ms, it.NextDelay)
	}
}

func TestRunCompensatedUsesAccAndLast(t *testing.T) {
	clk := newAutoClock()
	obs := &iterations{}
	_, err := Run(context.Background(), Config[int, int]{
		Action: func(_ context.Context, idx int) (int, error) {
			return idx + 1, nil
		},
		Pacing: Compensated(func(acc, last int) time.Duration {
			return time.Duration(acc*last) * ms
		}),
		While:    func(acc, _ int) bool { return acc < 4 },
		Clock:    clk,
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	starts := obs.starts()
	require.Len(t, starts, 4)
	// acc and last are equal here, so gaps are 1ms, 4ms and 9ms.
	require.Equal(t, 1*ms, starts[1].Sub(starts[0]))
	require.Equal(t, 4*ms, starts[2].Sub(starts[1]))
	require.Equal(t, 9*ms, starts[3].Sub(starts[2]))
}

func TestRunAnchoredDelayAfterFinish(t *testing.T) {
	clk := newAutoClock()
	obs := &iterations{}
	var seenAcc []int
	var seenElapsed []time.Duration
	res, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) {
			clk.Add(30 * ms)
			return 1, nil
		},
		Pacing: Anchored(func(acc, _ int, elapsed time.Duration) time.Duration {
			seenAcc = append(seenAcc, acc)
			seenElapsed = append(seenElapsed, elapsed)
			return 100 * ms
		}),
		While:    func(acc, _ int) bool { return acc < 4 },
		Clock:    clk,
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 4, res)
	requireGaps(t, obs.starts(), 130*ms)
	require.Equal(t, []int{1, 2, 3, 4}, seenAcc)
	for _, e := range seenElapsed {
		require.Equal(t, 30*ms, e)
	}
}

func TestRunAnchoredVariableWaitTime(t *testing.T) {
	clk := newAutoClock()
	res, err := Run(context.Background(), Config[int, struct{}]{
		Action: func(context.Context, int) (struct{}, error) {
			clk.Add(10 * ms)
			return struct{}{}, nil
		},
		Pacing: Anchored(func(_ int, _ struct{}, elapsed time.Duration) time.Duration {
			require.GreaterOrEqual(t, elapsed, 10*ms)
			return 0
		}),
		While:   func(acc int, _ struct{}) bool { return acc < 10 },
		Initial: 0,
		Reducer: func(acc int, _ struct{}) int { return acc + 1 },
		Clock:   clk,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 10, res)
}

func TestRunNegativeDelayIsClamped(t *testing.T) {
	obs := &iterations{}
	res, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) { return 0, nil },
		Pacing: Anchored(func(int, int, time.Duration) time.Duration {
			return -5 * time.Second
		}),
		While:    func(acc, _ int) bool { return acc < 3 },
		Clock:    clock.NewMock(), // timers never fire on plain mock
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res)
	for _, it := range obs.its {
		require.Zero(t, it.NextDelay)
	}
	requireGaps(t, obs.starts(), 0)
}

type actionError struct {
	cause string
}

func (e *actionError) Error() string { return e.cause }

func TestRunActionFailure(t *testing.T) {
	want := &actionError{cause: "unknown"}
	reduced := 0
	obs := &iterations{}
	res, err := Run(context.Background(), Config[total, int]{
		Action: func(_ context.Context, idx int) (int, error) {
			if idx == 3 {
				return 0, want
			}
			return 2, nil
		},
		Pacing: Every[total, int](100 * ms),
		While:  func(acc total, _ int) bool { return acc.Total < 10 },
		Reducer: func(acc total, last int) total {
			reduced++
			acc.Total += last
			return acc
		},
		Clock:    newAutoClock(),
		Observer: obs,
		Logger:   testLogger(),
	})
	require.Error(t, err)
	require.Same(t, want, err.(*actionError))
	require.Equal(t, total{}, res)
	require.Equal(t, 3, reduced)
	require.Len(t, obs.its, 4)
	require.ErrorIs(t, obs.its[3].Err, want)
	require.False(t, obs.its[3].Continue)
}

func TestRunActionFailsFirst(t *testing.T) {
	want := errors.New("boom")
	whileCalled := false
	res, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) { return 5, want },
		Pacing: Every[int, int](ms),
		While: func(int, int) bool {
			whileCalled = true
			return true
		},
		Initial: 42,
		Clock:   newAutoClock(),
		Logger:  testLogger(),
	})
	require.Equal(t, want, err)
	require.Zero(t, res)
	require.False(t, whileCalled)
}

func TestRunConfigErrors(t *testing.T) {
	calls := 0
	action := func(context.Context, int) (int, error) {
		calls++
		return 0, nil
	}
	while := func(int, int) bool { return false }

	data := []struct {
		name     string
		cfg      Config[int, int]
		expected error
	}{
		{"no action", Config[int, int]{Pacing: Every[int, int](ms), While: while}, ErrNoAction},
		{"no pacing", Config[int, int]{Action: action, While: while}, ErrNoPacing},
		{"nil compensated", Config[int, int]{Action: action, Pacing: Compensated[int, int](nil), While: while}, ErrNoPacing},
		{"nil anchored", Config[int, int]{Action: action, Pacing: Anchored[int, int](nil), While: while}, ErrNoPacing},
		{"nil strategy", Config[int, int]{Action: action, Pacing: Backoff[int, int](nil, nil), While: while}, ErrNoPacing},
		{"typed nil strategy", Config[int, int]{Action: action, Pacing: Backoff[int, int]((*pace.LinearBackoff)(nil), nil), While: while}, ErrNoPacing},
		{"typed nil exponential", Config[int, int]{Action: action, Pacing: Backoff[int, int]((*pace.ExponentialBackoff)(nil), nil), While: while}, ErrNoPacing},
		{"no while", Config[int, int]{Action: action, Pacing: Every[int, int](ms)}, ErrNoCondition},
	}

	for _, d := range data {
		require.ErrorIs(t, Validate(d.cfg), d.expected, d.name)
		d.cfg.Logger = testLogger()
		_, err := Run(context.Background(), d.cfg)
		require.ErrorIs(t, err, d.expected, d.name)
	}
	require.Zero(t, calls)
}

func TestRunNonNumericAccumulatorNeedsReducer(t *testing.T) {
	called := false
	cfg := Config[total, int]{
		Action: func(context.Context, int) (int, error) {
			called = true
			return 0, nil
		},
		Pacing: Every[total, int](ms),
		While:  func(total, int) bool { return false },
		Logger: testLogger(),
	}
	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrNoReducer)
	require.False(t, called)

	cfg.Reducer = func(acc total, _ int) total { return acc }
	require.NoError(t, Validate(cfg))
}

type hits int64

func TestRunDefaultReducerNumericTypes(t *testing.T) {
	ctx := context.Background()
	clk := newAutoClock()
	action := func(context.Context, int) (string, error) { return "", nil }

	f, err := Run(ctx, Config[float64, string]{
		Action: action,
		Pacing: Every[float64, string](ms),
		While:  func(acc float64, _ string) bool { return acc < 3 },
		Clock:  clk,
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, 3.0, f)

	u, err := Run(ctx, Config[uint8, string]{
		Action:  action,
		Pacing:  Every[uint8, string](ms),
		While:   func(acc uint8, _ string) bool { return acc < 5 },
		Initial: 2,
		Clock:   clk,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, uint8(5), u)

	h, err := Run(ctx, Config[hits, string]{
		Action: action,
		Pacing: Every[hits, string](ms),
		While:  func(acc hits, _ string) bool { return acc < 4 },
		Clock:  clk,
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, hits(4), h)
}

func TestRunBackoff(t *testing.T) {
	lb, err := pace.NewLinearBackoff(10*ms, 50*ms, 10*ms, 1)
	require.NoError(t, err)
	found := []bool{true, true, false, false, false, true, false}
	obs := &iterations{}

	res, err := Run(context.Background(), Config[int, bool]{
		Action: func(_ context.Context, idx int) (bool, error) {
			return found[idx], nil
		},
		Pacing:   Backoff(lb, func(_ int, last bool) bool { return last }),
		While:    func(acc int, _ bool) bool { return acc < len(found) },
		Clock:    newAutoClock(),
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, len(found), res)

	expected := []time.Duration{0, 0, 10 * ms, 20 * ms, 30 * ms, 0, 10 * ms}
	require.Len(t, obs.its, len(expected))
	for idx, it := range obs.its {
		require.Equal(t, expected[idx], it.NextDelay, "iteration %d", idx)
	}
	starts := obs.starts()
	require.Equal(t, 60*ms, starts[len(starts)-1].Sub(starts[0]))
}

func TestRunContextDoneWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	_, err := Run(ctx, Config[int, int]{
		Action: func(context.Context, int) (int, error) {
			calls++
			cancel()
			return 0, nil
		},
		Pacing: Every[int, int](time.Hour),
		While:  func(int, int) bool { return true },
		Clock:  clock.NewMock(),
		Logger: testLogger(),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRunContextDoneWithoutDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &iterations{}
	calls := 0
	_, err := Run(ctx, Config[int, int]{
		Action: func(_ context.Context, iteration int) (int, error) {
			calls++
			if iteration == 2 {
				cancel()
			}
			return 0, nil
		},
		Pacing:   Every[int, int](0),
		While:    func(int, int) bool { return true },
		Clock:    clock.NewMock(),
		Observer: obs,
		Logger:   testLogger(),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, calls)
	require.Len(t, obs.its, 3)
	for _, it := range obs.its {
		require.NoError(t, it.Err)
	}
}

func TestRunFirstActionIgnoresDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Run(ctx, Config[int, int]{
		Action: func(context.Context, int) (int, error) {
			calls++
			return 0, nil
		},
		Pacing: Every[int, int](0),
		While:  func(int, int) bool { return true },
		Clock:  clock.NewMock(),
		Logger: testLogger(),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRunOrdering(t *testing.T) {
	var events []string
	_, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) {
			events = append(events, "action")
			return 1, nil
		},
		Pacing: Anchored(func(int, int, time.Duration) time.Duration {
			events = append(events, "wait")
			return ms
		}),
		While: func(acc, _ int) bool {
			events = append(events, "while")
			return acc < 2
		},
		Reducer: func(acc, last int) int {
			events = append(events, "reduce")
			return acc + last
		},
		Observer: ObserverFunc(func(context.Context, Iteration) {
			events = append(events, "observe")
		}),
		Clock:  newAutoClock(),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	once := []string{"action", "reduce", "wait", "while", "observe"}
	require.Equal(t, append(once, once...), events)
}

func TestRunIndependentConcurrentRuns(t *testing.T) {
	const runs = 20
	var wg sync.WaitGroup
	results := make([]int, runs)
	errs := make([]error, runs)
	for r := 0; r < runs; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			results[r], errs[r] = Run(context.Background(), Config[int, int]{
				Action: func(context.Context, int) (int, error) { return r, nil },
				Pacing: Every[int, int](ms),
				While:  func(acc, _ int) bool { return acc < r+1 },
				Logger: testLogger(),
			})
		}(r)
	}
	wg.Wait()
	for r := 0; r < runs; r++ {
		require.NoError(t, errs[r])
		require.Equal(t, r+1, results[r])
	}
}

func TestRunRealClockPacing(t *testing.T) {
	const interval = 5 * ms
	const n = 5
	start := time.Now()
	res, err := Run(context.Background(), Config[int, int]{
		Action: func(context.Context, int) (int, error) { return 0, nil },
		Pacing: Every[int, int](interval),
		While:  func(acc, _ int) bool { return acc < n },
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, n, res)
	require.GreaterOrEqual(t, time.Since(start), (n-1)*interval)
}

func TestObserversFanOut(t *testing.T) {
	first, second := &iterations{}, &iterations{}
	_, err := Run(context.Background(), Config[int, int]{
		Action:   func(context.Context, int) (int, error) { return 0, nil },
		Pacing:   Every[int, int](ms),
		While:    func(acc, _ int) bool { return acc < 3 },
		Observer: Observers{first, nil, second},
		Clock:    newAutoClock(),
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	require.Len(t, first.its, 3)
	require.Len(t, second.its, 3)
	require.True(t, first.its[1].Continue)
	require.False(t, first.its[2].Continue)
}

func TestParseDiscipline(t *testing.T) {
	for _, name := range []string{"compensated", "anchored", "backoff"} {
		d, err := ParseDiscipline(name)
		require.NoError(t, err)
		require.Equal(t, Discipline(name), d)
	}
	_, err := ParseDiscipline("eager")
	require.Error(t, err)

	require.Equal(t, DisciplineCompensated, Every[int, int](ms).Discipline())
	require.Equal(t, DisciplineAnchored,
		Anchored(func(int, int, time.Duration) time.Duration { return 0 }).Discipline())
	require.Equal(t, DisciplineBackoff,
		Backoff[int, int](pace.NewFixed(ms), nil).Discipline())
}
