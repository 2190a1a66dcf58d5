// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package main is the statflow command: the usage statistics daemon and
// its operations CLI.
//
// Statflow collects usage events from digital repository platforms,
// anonymizes them, indexes them into a search cluster and rolls them up
// into daily statistics that are served back over HTTP.
//
// # Pipeline
//
// Events flow through four stages:
//
//  1. Receive: producers POST events to /events/{type} (or publish to
//     the bus directly). Builders stamp request-derived fields; the
//     batch is queued on a JetStream subject per event type.
//  2. Index: the indexer drains the queue, runs the preprocessor chain
//     (robot flags, anonymization, unique ids), collapses double
//     clicks and bulk-writes dated raw-event indices.
//  3. Aggregate: the aggregator advances from its bookmark, folding raw
//     events into daily rollup documents with approximate visitor
//     counts.
//  4. Query: named histogram and terms queries read the rollups back;
//     POST /stats executes a labeled batch of them.
//
// # Commands
//
//	statflow serve                     run the daemon (receiver, API, schedulers)
//	statflow init                      install index templates and the bookmark index
//	statflow events process            drain and index queued events
//	statflow aggregations process      advance aggregations
//	statflow aggregations delete       remove rollups and bookmarks in a range
//	statflow aggregations list-bookmarks  show aggregation progress
//	statflow queues declare|purge|delete  manage bus streams and consumers
//
// Pipeline commands dispatch a task to a running daemon by default; the
// --eager flag executes against the cluster in-process instead.
//
// # Configuration
//
// Settings load from built-in defaults, then an optional YAML file
// (./statflow.yaml or /etc/statflow/statflow.yaml), then environment
// variables. See internal/config for every key.
//
// # Exit Codes
//
//	0  success
//	1  runtime failure
//	2  invalid input (unknown names, malformed dates, missing arguments)
package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, errInvalidInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
