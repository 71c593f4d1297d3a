// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"fmt"
)

// TableNames is a list of run history table names.
var TableNames []string = []string{
	"runs",
	"iterations",
}

// SchemaStatements returns a list of SQL statements that setups run history
// tables. Exact list of statements depends on given database driver name. If
// given database driver is not supported, then non-nil error is returned.
func SchemaStatements(dbDriver string) ([]string, error) {
	switch dbDriver {
	case Sqlite, "sqlite3":
		return []string{
			"PRAGMA journal_mode = WAL;",
			createRunsTable(),
			createIterationsTable(),
		}, nil
	case Postgres:
		return []string{
			createRunsTable(),
			createIterationsTable(),
		}, nil
	}
	return []string{}, fmt.Errorf("there is no schema for %s driver defined",
		dbDriver)
}

func createRunsTable() string {
	return `
-- Table runs stores a single row per throttle run.
CREATE TABLE IF NOT EXISTS runs (
    RunId TEXT NOT NULL,            -- Run UUID
    Name TEXT NOT NULL,             -- Run name given by the caller
    Discipline TEXT NOT NULL,       -- Pacing discipline
    StartTs TEXT NOT NULL,          -- Run start timestamp
    FinishTs TEXT NOT NULL,         -- Run finish timestamp, empty while running
    Status TEXT NOT NULL,           -- RUNNING, SUCCESS or FAILED
    Iterations INTEGER NOT NULL,    -- Number of action invocations
    Error TEXT NOT NULL,            -- Error message for failed runs

    PRIMARY KEY (RunId)
);
`
}

func createIterationsTable() string {
	return `
-- Table iterations stores every finished action invocation within a run.
CREATE TABLE IF NOT EXISTS iterations (
    RunId TEXT NOT NULL,            -- Run UUID, references runs.RunId
    Idx INTEGER NOT NULL,           -- Iteration index starting from 0
    StartTs TEXT NOT NULL,          -- Action start timestamp
    ElapsedMs INTEGER NOT NULL,     -- Action duration in milliseconds
    NextDelayMs INTEGER NOT NULL,   -- Wait before the next action in milliseconds
    Continued INTEGER NOT NULL,     -- 1 when the run continued after this iteration
    Error TEXT NOT NULL,            -- Action error message, empty on success

    PRIMARY KEY (RunId, Idx)
);
`
}
