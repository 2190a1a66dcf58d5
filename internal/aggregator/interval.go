// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package aggregator

import (
	"fmt"
	"time"
)

// Interval is a rollup bucketing granularity. Rollup document ids,
// bookmark dates and rollup index suffixes are all rendered in the
// interval's layout, so the layout doubles as the storage format.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ParseInterval validates an interval name from configuration.
func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(s); iv {
	case IntervalHour, IntervalDay, IntervalMonth, IntervalYear:
		return iv, nil
	default:
		return "", fmt.Errorf("unsupported interval %q", s)
	}
}

// Layout returns the time layout bookmarks and document id suffixes are
// rendered with.
func (iv Interval) Layout() string {
	switch iv {
	case IntervalHour:
		return "2006-01-02T15"
	case IntervalDay:
		return "2006-01-02"
	case IntervalMonth:
		return "2006-01"
	default:
		return "2006"
	}
}

// rank orders intervals from shortest to longest. The aggregation
// interval must not outrank the index interval.
func (iv Interval) rank() int {
	switch iv {
	case IntervalHour:
		return 0
	case IntervalDay:
		return 1
	case IntervalMonth:
		return 2
	default:
		return 3
	}
}

// Floor returns the start of the interval containing t, in UTC.
func (iv Interval) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch iv {
	case IntervalHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the interval following the one containing
// t. Stepping through floored starts avoids the date normalization that
// plain AddDate arithmetic does at month ends.
func (iv Interval) Next(t time.Time) time.Time {
	start := iv.Floor(t)
	switch iv {
	case IntervalHour:
		return start.Add(time.Hour)
	case IntervalDay:
		return start.AddDate(0, 0, 1)
	case IntervalMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

// RangeExpr renders t as an engine date-math expression rounded to the
// interval, e.g. "2026-08-24T10:15:00||/d". Used on both ends of a
// range filter it selects the whole interval containing t.
func (iv Interval) RangeExpr(t time.Time) string {
	var unit string
	switch iv {
	case IntervalHour:
		unit = "h"
	case IntervalDay:
		unit = "d"
	case IntervalMonth:
		unit = "M"
	default:
		unit = "y"
	}
	return t.UTC().Format(timestampLayout) + "||/" + unit
}
