// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package stats

import "errors"

// ErrUnknownEventType is returned when looking up an event type that was
// never registered. Publishing to an unregistered stream is refused so typos
// cannot silently create queues nobody drains.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrDuplicateEventType is returned when registering an event type name twice.
var ErrDuplicateEventType = errors.New("event type already registered")

// ErrUnknownAggregation is returned when looking up an unregistered aggregation.
var ErrUnknownAggregation = errors.New("unknown aggregation")

// ErrDuplicateAggregation is returned when registering an aggregation name twice.
var ErrDuplicateAggregation = errors.New("aggregation already registered")

// ErrUnknownQuery is returned when looking up an unregistered query.
var ErrUnknownQuery = errors.New("unknown query")

// ErrDuplicateQuery is returned when registering a query name twice.
var ErrDuplicateQuery = errors.New("query already registered")

// ErrEmptyName is returned when registering with an empty name.
var ErrEmptyName = errors.New("registration name must not be empty")

// ErrReservedName is returned when an event type claims a name the event bus
// reserves for itself.
var ErrReservedName = errors.New("event type name is reserved")
