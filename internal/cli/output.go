// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppacer/throttle/db"
)

// Exit codes of throttle CLI.
const (
	ExitSuccess      = 0
	ExitFailure      = 1   // the run failed
	ExitCommandError = 2   // invalid configuration, database errors
	ExitInterrupted  = 130 // the run was cancelled by SIGINT or SIGTERM
)

// ValidFormats defines the allowed output formats of history command.
var ValidFormats = []string{"text", "json", "yaml"}

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Returns ExitFailure if the
// error is not an ExitError and ExitSuccess for nil.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// runDetails is a single run together with its iterations.
type runDetails struct {
	db.Run  `yaml:",inline"`
	History []db.Iteration `json:"history" yaml:"history"`
}

// writeRuns writes list of runs in given format.
func writeRuns(w io.Writer, format string, runs []db.Run) error {
	switch format {
	case "json":
		return writeJSON(w, runs)
	case "yaml":
		return writeYAML(w, runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-36s  %-20s  %-11s  %-9s  %10s  %s\n", "RUN ID", "NAME",
		"DISCIPLINE", "STATUS", "ITERATIONS", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(&sb, "%-36s  %-20s  %-11s  %-9s  %10d  %s\n", r.RunId,
			truncate(r.Name, 20), r.Discipline, r.Status, r.Iterations,
			r.StartTs)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// writeRunDetails writes a single run with its iterations in given format.
func writeRunDetails(w io.Writer, format string, details runDetails) error {
	switch format {
	case "json":
		return writeJSON(w, details)
	case "yaml":
		return writeYAML(w, details)
	}
	r := details.Run
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:        %s\n", r.RunId)
	fmt.Fprintf(&sb, "Name:       %s\n", r.Name)
	fmt.Fprintf(&sb, "Discipline: %s\n", r.Discipline)
	fmt.Fprintf(&sb, "Status:     %s\n", r.Status)
	fmt.Fprintf(&sb, "Started:    %s\n", r.StartTs)
	fmt.Fprintf(&sb, "Finished:   %s\n", r.FinishTs)
	fmt.Fprintf(&sb, "Iterations: %d\n", r.Iterations)
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error:      %s\n", r.Error)
	}
	if len(details.History) > 0 {
		fmt.Fprintf(&sb, "\n%5s  %10s  %10s  %-8s  %s\n", "IDX", "ELAPSED",
			"NEXT", "CONTINUE", "ERROR")
	}
	for _, it := range details.History {
		fmt.Fprintf(&sb, "%5d  %8dms  %8dms  %-8t  %s\n", it.Idx, it.ElapsedMs,
			it.NextDelayMs, it.Continued, it.Error)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
