// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"time"
)

// Iteration represent a row of data in iterations table.
type Iteration struct {
	RunId       string `json:"runId" yaml:"runId"`
	Idx         int    `json:"idx" yaml:"idx"`
	StartTs     string `json:"startTs" yaml:"startTs"`
	ElapsedMs   int64  `json:"elapsedMs" yaml:"elapsedMs"`
	NextDelayMs int64  `json:"nextDelayMs" yaml:"nextDelayMs"`
	Continued   bool   `json:"continued" yaml:"continued"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// InsertIteration inserts new row into iterations table.
func (c *Client) InsertIteration(ctx context.Context, it Iteration) error {
	start := time.Now()
	continued := 0
	if it.Continued {
		continued = 1
	}
	_, err := c.dbConn.ExecContext(
		ctx, c.rebind(insertIterationQuery()),
		it.RunId, it.Idx, it.StartTs, it.ElapsedMs, it.NextDelayMs, continued,
		it.Error,
	)
	if err != nil {
		c.logger.Error("Cannot insert iteration", "runId", it.RunId, "idx",
			it.Idx, "err", err)
		return err
	}
	c.logger.Debug("Inserted iteration", "runId", it.RunId, "idx", it.Idx,
		"duration", time.Since(start))
	return nil
}

// ReadIterations reads all iterations of given run ordered by iteration
// index.
func (c *Client) ReadIterations(ctx context.Context, runId string) ([]Iteration, error) {
	start := time.Now()
	its := make([]Iteration, 0, 16)
	rows, qErr := c.dbConn.QueryContext(
		ctx, c.rebind(readIterationsQuery()), runId,
	)
	if qErr != nil {
		c.logger.Error("Failed querying iterations", "runId", runId, "err",
			qErr)
		return nil, qErr
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			c.logger.Warn("Context done while processing iterations", "runId",
				runId, "err", ctx.Err())
			return nil, ctx.Err()
		default:
		}
		it, scanErr := parseIteration(rows)
		if scanErr != nil {
			c.logger.Error("Failed scanning iteration record", "runId", runId,
				"err", scanErr)
			return nil, scanErr
		}
		its = append(its, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Finished reading iterations", "runId", runId, "count",
		len(its), "duration", time.Since(start))
	return its, nil
}

func parseIteration(row Scannable) (Iteration, error) {
	var it Iteration
	var continued int
	err := row.Scan(&it.RunId, &it.Idx, &it.StartTs, &it.ElapsedMs,
		&it.NextDelayMs, &continued, &it.Error)
	it.Continued = continued == 1
	return it, err
}

func insertIterationQuery() string {
	return `
		INSERT INTO iterations (RunId, Idx, StartTs, ElapsedMs, NextDelayMs, Continued, Error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
}

func readIterationsQuery() string {
	return `
		SELECT
			RunId, Idx, StartTs, ElapsedMs, NextDelayMs, Continued, Error
		FROM
			iterations
		WHERE
			RunId = ?
		ORDER BY
			Idx
	`
}
