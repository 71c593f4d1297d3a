// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ppacer/throttle/timeutils"
)

// Run statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSuccess   = "SUCCESS"
	RunStatusFailed    = "FAILED"
	RunStatusCancelled = "CANCELLED"
)

// ErrRunNotFound is returned when there's no run of given RunId.
var ErrRunNotFound = errors.New("run not found")

// Run represent a row of data in runs table.
type Run struct {
	RunId      string `json:"runId" yaml:"runId"`
	Name       string `json:"name" yaml:"name"`
	Discipline string `json:"discipline" yaml:"discipline"`
	StartTs    string `json:"startTs" yaml:"startTs"`
	FinishTs   string `json:"finishTs" yaml:"finishTs"`
	Status     string `json:"status" yaml:"status"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// InsertRun inserts new row into runs table in RUNNING status.
func (c *Client) InsertRun(ctx context.Context, runId, name, discipline string) error {
	start := time.Now()
	startTs := timeutils.ToString(timeutils.Now())
	c.logger.Debug("Start inserting run", "runId", runId, "name", name)
	_, err := c.dbConn.ExecContext(
		ctx, c.rebind(insertRunQuery()),
		runId, name, discipline, startTs, "", RunStatusRunning, 0, "",
	)
	if err != nil {
		c.logger.Error("Cannot insert new run", "runId", runId, "name", name,
			"err", err)
		return err
	}
	c.logger.Debug("Finished inserting run", "runId", runId, "duration",
		time.Since(start))
	return nil
}

// FinishRun sets final status of given run. Status is SUCCESS when runErr is
// nil, CANCELLED when runErr is context.Canceled and FAILED otherwise.
func (c *Client) FinishRun(ctx context.Context, runId string, iterations int, runErr error) error {
	start := time.Now()
	status, errMsg := RunStatusSuccess, ""
	switch {
	case errors.Is(runErr, context.Canceled):
		status, errMsg = RunStatusCancelled, runErr.Error()
	case runErr != nil:
		status, errMsg = RunStatusFailed, runErr.Error()
	}
	finishTs := timeutils.ToString(timeutils.Now())
	res, err := c.dbConn.ExecContext(
		ctx, c.rebind(finishRunQuery()),
		finishTs, status, iterations, errMsg, runId,
	)
	if err != nil {
		c.logger.Error("Cannot update run status", "runId", runId, "status",
			status, "err", err)
		return err
	}
	if n, rErr := res.RowsAffected(); rErr == nil && n == 0 {
		return ErrRunNotFound
	}
	c.logger.Debug("Finished updating run status", "runId", runId, "status",
		status, "duration", time.Since(start))
	return nil
}

// ReadRun reads a single run. ErrRunNotFound is returned when there's no such
// run.
func (c *Client) ReadRun(ctx context.Context, runId string) (Run, error) {
	row := c.dbConn.QueryRowContext(ctx, c.rebind(readRunQuery()), runId)
	run, err := parseRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		c.logger.Error("Failed reading run", "runId", runId, "err", err)
		return Run{}, err
	}
	return run, nil
}

// ReadRuns reads topN latest runs, the latest first. Negative topN means all
// runs. Runs are ordered by StartTs, which is stored in fixed-width UTC format
// and sorts lexically.
func (c *Client) ReadRuns(ctx context.Context, topN int) ([]Run, error) {
	start := time.Now()
	c.logger.Debug("Start reading runs", "topN", topN)
	query, args := readRunsQuery(false), []any{}
	if topN >= 0 {
		query, args = readRunsQuery(true), []any{topN}
	}
	runs := make([]Run, 0, max(topN, 10))
	rows, qErr := c.dbConn.QueryContext(ctx, c.rebind(query), args...)
	if qErr != nil {
		c.logger.Error("Failed querying runs", "topN", topN, "err", qErr)
		return nil, qErr
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			c.logger.Warn("Context done while processing runs", "err",
				ctx.Err())
			return nil, ctx.Err()
		default:
		}
		run, scanErr := parseRun(rows)
		if scanErr != nil {
			c.logger.Error("Failed scanning run record", "err", scanErr)
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Finished reading runs", "topN", topN, "duration",
		time.Since(start))
	return runs, nil
}

func parseRun(row Scannable) (Run, error) {
	var r Run
	err := row.Scan(&r.RunId, &r.Name, &r.Discipline, &r.StartTs, &r.FinishTs,
		&r.Status, &r.Iterations, &r.Error)
	return r, err
}

func insertRunQuery() string {
	return `
		INSERT INTO runs (RunId, Name, Discipline, StartTs, FinishTs, Status, Iterations, Error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
}

func finishRunQuery() string {
	return `
	UPDATE
		runs
	SET
		FinishTs = ?,
		Status = ?,
		Iterations = ?,
		Error = ?
	WHERE
		RunId = ?
	`
}

func readRunQuery() string {
	return `
		SELECT
			RunId, Name, Discipline, StartTs, FinishTs, Status, Iterations, Error
		FROM
			runs
		WHERE
			RunId = ?
	`
}

func readRunsQuery(limit bool) string {
	query := `
		SELECT
			RunId, Name, Discipline, StartTs, FinishTs, Status, Iterations, Error
		FROM
			runs
		ORDER BY
			StartTs DESC, RunId
	`
	if limit {
		query += "LIMIT ?\n"
	}
	return query
}
