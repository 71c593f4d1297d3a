// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package timeutils contains timestamp and duration helpers used to store
// run history.
package timeutils

import "time"

// Timestamp format for time.Time serialization. This format is used to store
// timestamps in the database. Fractional seconds have fixed width, so UTC
// timestamps sort lexically in chronological order.
const TimestampFormat = "2006-01-02T15:04:05.000000MST-07:00"

// parseFormat accepts any number of fractional digits, including none.
const parseFormat = "2006-01-02T15:04:05.999999999MST-07:00"

// Now returns current UTC time truncated to microseconds. UTC conversion drops
// monotonic clock reading, so the result survives ToString/FromString round
// trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ToString serialize give time.Time to string based on TimestampFormat format.
func ToString(t time.Time) string {
	return t.Format(TimestampFormat)
}

// FromString tries to recreate time.Time based on given string value according
// to TimestampFormat format. Fractional seconds might be trimmed.
func FromString(s string) (time.Time, error) {
	return time.Parse(parseFormat, s)
}

// FromStringMust is FromString which returns time.Time{} in case of parsing
// error. It's meant for strings produced by ToString.
func FromStringMust(s string) time.Time {
	t, err := FromString(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ToMs returns given duration as a number of milliseconds, rounded to the
// nearest millisecond.
func ToMs(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}

// FromMs converts number of milliseconds into time.Duration.
func FromMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
