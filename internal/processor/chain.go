// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package processor implements the preprocessor chain applied to every
// raw usage event before indexing: robot and machine flagging, user
// anonymization with a rotating daily salt, and unique-id derivation.
//
// Processors are pure by contract. Each one receives the event map,
// mutates or replaces it, and hands it to the next. Returning a nil
// event drops the event; returning an error makes the indexer log and
// skip that single event while the rest of the batch proceeds.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/statflow/statflow/internal/stats"
)

var errNoTimestamp = errors.New("event has no timestamp")

// Chain applies an ordered list of processors to an event.
type Chain struct {
	processors []stats.Processor
}

// NewChain builds a chain from the given processors, applied in order.
func NewChain(processors ...stats.Processor) *Chain {
	return &Chain{processors: processors}
}

// Run passes the event through every processor. A (nil, nil) return
// means the event was dropped by one of the steps.
func (c *Chain) Run(ctx context.Context, event map[string]any) (map[string]any, error) {
	for i, p := range c.processors {
		var err error
		event, err = p.Process(ctx, event)
		if err != nil {
			return nil, fmt.Errorf("processor %d: %w", i, err)
		}
		if event == nil {
			return nil, nil
		}
	}
	return event, nil
}

// Len returns the number of processors in the chain.
func (c *Chain) Len() int {
	return len(c.processors)
}

// EventTime parses the event's timestamp field. Producers send ISO
// timestamps with or without fractional seconds and zone offset; naive
// timestamps are taken as UTC.
func EventTime(event map[string]any) (time.Time, error) {
	s, ok := event["timestamp"].(string)
	if !ok || s == "" {
		return time.Time{}, errNoTimestamp
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
