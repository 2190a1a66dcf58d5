// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

/*
Package supervisor provides process supervision for the serve daemon
using suture v4.

The package implements a hierarchical supervisor tree that manages the
lifecycle of every long-running part of the pipeline. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation
and graceful shutdown.

# Overview

The tree organizes services into three layers:

	RootSupervisor ("statflow")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── BusServerService (if NATS_EMBEDDED)
	│   └── StreamKeeperService
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── IndexerScheduler
	│   ├── AggregationScheduler
	│   └── TaskRunnerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The layering ensures that:
  - A crashing pipeline worker restarts without dropping HTTP traffic
  - Bus trouble never takes down queries over already-aggregated data
  - Each layer has independent failure counting and backoff

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. The counter decays over FailureDecay seconds
 3. When it exceeds FailureThreshold, the layer enters backoff
 4. During backoff, restarts are delayed by FailureBackoff

Services return nil to stop cleanly and stay stopped, or an error to be
restarted. Context cancellation is the shutdown signal; every wrapper
in supervisor/services translates it to its component's stop call.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
	tree.AddPipelineService(services.NewIndexerScheduler(indexers, interval, logger))

	if err := tree.Serve(ctx); err != nil {
	    return err
	}

Suture logs service starts, stops and restarts through the sutureslog
adapter, which feeds the zerolog-backed slog handler from the logging
package.

# What Is Not Supervised

One-shot CLI commands (events process, aggregations process, init) run
their work inline without a tree; restarts would repeat work the queue
or the bookmark already tracks. The search engine client is a
connection pool, not a service, and needs no supervision.

# Debugging Shutdown Issues

If services do not stop within the timeout:

	report, _ := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("service didn't stop: %v", svc)
	}

# See Also

  - internal/supervisor/services: the service wrappers
  - github.com/thejerf/suture/v4: the underlying library
*/
package supervisor
