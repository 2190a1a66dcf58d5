// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

/*
Package api provides the HTTP surface of the pipeline.

Two endpoints carry the fixed external contract:

  - POST /stats runs registered statistics queries. The body maps
    caller-chosen labels to {stat, params} pairs; the response maps the
    same labels to query results, with null standing in for queries
    whose rollup index does not exist yet.
  - POST /events/{type} accepts producer event payloads, enriches them
    with request-derived fields through the type's builders and
    publishes them to the bus. The endpoint is registered only when
    receivers are enabled.

Everything else (health endpoints, Prometheus metrics) follows the
envelope in response.go. Errors always use the envelope, including on
the fixed-contract endpoints.
*/
package api
