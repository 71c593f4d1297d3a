// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// setupZerolog creates CLI logger for given configuration. Console format is
// meant for terminals, JSON format for log collectors.
func setupZerolog(cfg LogConfig, w io.Writer) zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// slogBridge returns slog.Logger for library packages which writes through
// given zerolog logger. Records keep their level and attributes become
// zerolog fields. Records below level of the zerolog logger are dropped.
func slogBridge(zl zerolog.Logger) *slog.Logger {
	return slog.New(&zerologHandler{zl: zl})
}

// zerologHandler is slog.Handler writing records as zerolog events.
type zerologHandler struct {
	zl     zerolog.Logger
	attrs  []slog.Attr
	prefix string
}

func (h *zerologHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= slogLevel(h.zl.GetLevel())
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	event := h.zl.WithLevel(zerologLevel(r.Level))
	if event == nil {
		return nil
	}
	for _, attr := range h.attrs {
		addField(event, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		addField(event, h.prefix, attr)
		return true
	})
	event.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, attr := range attrs {
		if h.prefix != "" {
			attr.Key = h.prefix + attr.Key
		}
		h2.attrs = append(h2.attrs, attr)
	}
	return &h2
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// addField adds slog attribute as zerolog field. Group members are flattened
// into dotted keys.
func addField(event *zerolog.Event, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := prefix + attr.Key
	switch value.Kind() {
	case slog.KindGroup:
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = key + "."
		}
		for _, member := range value.Group() {
			addField(event, groupPrefix, member)
		}
	case slog.KindString:
		event.Str(key, value.String())
	case slog.KindInt64:
		event.Int64(key, value.Int64())
	case slog.KindUint64:
		event.Uint64(key, value.Uint64())
	case slog.KindFloat64:
		event.Float64(key, value.Float64())
	case slog.KindBool:
		event.Bool(key, value.Bool())
	case slog.KindDuration:
		event.Dur(key, value.Duration())
	case slog.KindTime:
		event.Time(key, value.Time())
	default:
		if err, isErr := value.Any().(error); isErr {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, value.Any())
	}
}

func slogLevel(lvl zerolog.Level) slog.Level {
	switch {
	case lvl <= zerolog.DebugLevel:
		return slog.LevelDebug
	case lvl == zerolog.InfoLevel:
		return slog.LevelInfo
	case lvl == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func zerologLevel(lvl slog.Level) zerolog.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zerolog.DebugLevel
	case lvl < slog.LevelWarn:
		return zerolog.InfoLevel
	case lvl < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
