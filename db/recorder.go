// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ppacer/throttle"
	"github.com/ppacer/throttle/timeutils"
)

// Recorder writes history of a single run. It implements throttle.Observer,
// so it can be set as Config.Observer. Storage errors are logged and never
// interrupt the run.
type Recorder struct {
	client *Client
	runId  string

	mu         sync.Mutex
	iterations int
}

// NewRecorder creates Recorder for a new run with random UUID.
func NewRecorder(client *Client) *Recorder {
	return &Recorder{client: client, runId: uuid.NewString()}
}

// RunId returns identifier of the recorded run.
func (r *Recorder) RunId() string { return r.runId }

// Start inserts the run in RUNNING status.
func (r *Recorder) Start(ctx context.Context, name string, discipline throttle.Discipline) error {
	return r.client.InsertRun(ctx, r.runId, name, string(discipline))
}

// IterationDone inserts finished iteration.
func (r *Recorder) IterationDone(ctx context.Context, it throttle.Iteration) {
	r.mu.Lock()
	r.iterations++
	r.mu.Unlock()

	errMsg := ""
	if it.Err != nil {
		errMsg = it.Err.Error()
	}
	row := Iteration{
		RunId:       r.runId,
		Idx:         it.Index,
		StartTs:     timeutils.ToString(it.Start.UTC()),
		ElapsedMs:   timeutils.ToMs(it.Elapsed),
		NextDelayMs: timeutils.ToMs(it.NextDelay),
		Continued:   it.Continue,
		Error:       errMsg,
	}
	// Context of the run might be already cancelled, history should be
	// written anyway.
	if err := r.client.InsertIteration(context.WithoutCancel(ctx), row); err != nil {
		r.client.logger.Warn("Iteration was not recorded", "runId", r.runId,
			"idx", it.Index, "err", err)
	}
}

// Finish sets final status of the run based on runErr and number of recorded
// iterations.
func (r *Recorder) Finish(ctx context.Context, runErr error) error {
	r.mu.Lock()
	iterations := r.iterations
	r.mu.Unlock()
	return r.client.FinishRun(ctx, r.runId, iterations, runErr)
}
