// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

/*
Package search wraps the Elasticsearch cluster behind the narrow Engine
interface used by the rest of the pipeline.

The indexer, the aggregators and the query engine never talk to the
Elasticsearch client directly. They depend on Engine, which keeps the
surface small enough to fake in tests and keeps cluster concerns
(authentication, retries, bulk chunking, throttling) in one place.

# Index naming

All index and alias names flow through Namer, which applies the
configured prefix so several deployments can share one cluster:

  - events-stats-{event}-{suffix} holds raw events, aliased as
    events-stats-{event}
  - stats-{event}-{suffix} holds aggregated documents, aliased as
    stats-{event}
  - stats-bookmarks tracks aggregation progress

# Index templates

Mappings ship as composable index templates embedded in the binary.
TemplateManager installs them with the prefix applied, so dated indices
created by the pipeline pick up strict mappings and join their alias
automatically.
*/
package search
