// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package db stores history of throttle runs.

# Introduction

Each run is a row in runs table and each finished action invocation is a row
in iterations table. Recorder implements throttle.Observer, so history can be
written while the run progresses.

# Supported databases

  - SQLite - default database, also used as in-memory database and database
    in temporary files for tests.
  - Postgres
*/
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// Supported database drivers.
const (
	Sqlite   = "sqlite"
	Postgres = "postgres"
)

// DB defines a set of operations required from a database. Most of methods are
// identical with standard `*sql.DB` type.
type DB interface {
	Begin() (*sql.Tx, error)
	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
	DataSource() string
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scannable is satisfied by *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// Client represents the main database client.
type Client struct {
	dbConn   DB
	dbDriver string
	logger   *slog.Logger
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.dbConn.Close()
}

// DataSource returns SQLite file path or Postgres database name.
func (c *Client) DataSource() string {
	return c.dbConn.DataSource()
}

// NewSqliteClient produces new Client for SQLite database file. Schema is
// created, if it doesn't exist yet. When logger is nil, default logger on
// WARN level is used.
func NewSqliteClient(dbFilePath string, logger *slog.Logger) (*Client, error) {
	dbConn, err := sql.Open(Sqlite, dbFilePath)
	if err != nil {
		return nil, err
	}
	if err := setupSchema(dbConn, Sqlite); err != nil {
		dbConn.Close()
		return nil, err
	}
	sqliteDB := SqliteDB{dbConn: dbConn, dataSource: dbFilePath}
	return &Client{
		dbConn:   &sqliteDB,
		dbDriver: Sqlite,
		logger:   loggerOrDefault(logger),
	}, nil
}

// NewSqliteInMemoryClient produces new Client using in-memory SQLite
// database. Data is lost when the client is closed.
func NewSqliteInMemoryClient(logger *slog.Logger) (*Client, error) {
	dbConn, err := sql.Open(Sqlite, ":memory:")
	if err != nil {
		return nil, err
	}
	// Each connection would open a separate in-memory database.
	dbConn.SetMaxOpenConns(1)
	if err := setupSchema(dbConn, Sqlite); err != nil {
		dbConn.Close()
		return nil, err
	}
	sqliteDB := SqliteDB{dbConn: dbConn, dataSource: inMemoryDataSource}
	return &Client{
		dbConn:   &sqliteDB,
		dbDriver: Sqlite,
		logger:   loggerOrDefault(logger),
	}, nil
}

// NewSqliteTmpClient produces new Client for SQLite database placed in a new
// temporary file. It's mainly used in tests together with CleanUpSqliteTmp.
func NewSqliteTmpClient(logger *slog.Logger) (*Client, error) {
	f, err := os.CreateTemp("", "throttle_*.db")
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return NewSqliteClient(f.Name(), logger)
}

// CleanUpSqliteTmp deletes SQLite database source file if all tests in the
// scope passed. In at least one test failed, database will not be deleted, to
// enable futher debugging.
func CleanUpSqliteTmp(c *Client, t *testing.T) {
	if closeErr := c.dbConn.Close(); closeErr != nil {
		t.Errorf("Error while closing connection to DB: %s", closeErr.Error())
	}
	if c.dbConn.DataSource() == inMemoryDataSource {
		return
	}
	if t.Failed() {
		t.Logf("Database was not deleted. Please check: sqlite3 %s",
			c.dbConn.DataSource())
		return
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := c.dbConn.DataSource() + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.Errorf("Cannot remove database file %s: %s", path, err.Error())
		}
	}
}

// rebind replaces ? placeholders with $N placeholders for Postgres. Queries
// in this package never contain ? inside string literals.
func (c *Client) rebind(query string) string {
	if c.dbDriver != Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func setupSchema(dbConn *sql.DB, dbDriver string) error {
	stmts, err := SchemaStatements(dbDriver)
	if err != nil {
		return err
	}
	return execSqlStatements(dbConn, stmts)
}

func execSqlStatements(dbConn *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := dbConn.Exec(stmt); err != nil {
			return fmt.Errorf("cannot execute schema statement: %w", err)
		}
	}
	return nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	opts := slog.HandlerOptions{Level: slog.LevelWarn}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}
