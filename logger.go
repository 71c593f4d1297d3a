// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package throttle

import (
	"log/slog"
	"os"
)

// Name for environment variable for setting default logger severity level.
const ENV_LOG_LEVEL = "THROTTLE_LOG_LEVEL"

// defaultLogger returns text logger on stdout. Severity level is read from
// THROTTLE_LOG_LEVEL environment variable, WARN by default.
func defaultLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: LogLevel(os.Getenv(ENV_LOG_LEVEL))}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

// LogLevel maps level name (DEBUG, INFO, WARN, ERROR) into slog.Level. Unknown
// names are mapped to WARN.
func LogLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
