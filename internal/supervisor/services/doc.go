// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

/*
Package services provides suture.Service wrappers for the pipeline
components of the serve daemon.

Each wrapper adapts one component's lifecycle to suture's context-aware
Serve pattern and implements fmt.Stringer so suture log lines name the
service.

	type Service interface {
	    Serve(ctx context.Context) error
	}

Available services:

  - HTTPServerService wraps *http.Server, translating ListenAndServe
    into Serve with graceful shutdown.
  - BusServerService watches an embedded bus server and shuts it down
    on cancellation.
  - StreamKeeperService ensures the event stream and its consumers
    exist, recreating them when they disappear.
  - IndexerScheduler drains and indexes queued events on a fixed
    interval, one run per registered event type.
  - AggregationScheduler advances every registered aggregation on a
    fixed interval, serialized so runs of the same rollup never
    overlap.
  - TaskRunnerService polls the task queue and executes dispatched
    background work.

Return values decide supervision: nil stops the service for good, an
error triggers a restart with the layer's backoff, and a canceled
context is the shutdown signal.
*/
package services
