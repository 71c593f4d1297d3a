// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package notify

import (
	"bytes"
	"context"
	"log/slog"
)

// LogsErr is a notification client which "sends" notification as logs of
// severity ERROR. It implements Sender interface. It's the default sender of
// throttle CLI, when no other channel is configured.
type LogsErr struct {
	logger *slog.Logger
}

// NewLogsErr instantiate new LogsErr for given structured logger.
func NewLogsErr(logger *slog.Logger) *LogsErr {
	return &LogsErr{logger: logger}
}

// Send sends given message as a log of severity ERROR. Run identifier is
// attached as a log attribute.
func (l *LogsErr) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if writeErr := tmpl.Execute(&msgBuff, data); writeErr != nil {
		return writeErr
	}
	l.logger.Error(msgBuff.String(), "runId", data.RunId)
	return nil
}
