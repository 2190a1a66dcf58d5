// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

/*
Package middleware provides the HTTP middleware stack for the API.

All middleware use the chi-native func(http.Handler) http.Handler shape
and compose through r.Use:

	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RateLimit(100, time.Minute, false))
	r.Use(middleware.Authenticate(verifier))

Key Components:

  - RequestID: X-Request-ID propagation wired into the logging context
    (request_id plus a fresh correlation_id per request)
  - Metrics: Prometheus instrumentation of request counts, latencies
    and in-flight gauge
  - CORS: go-chi/cors with explicit origin allow-list
  - RateLimit: go-chi/httprate per-IP token bucket
  - Authenticate: bearer-token verification attaching an auth.Principal
    to the request context

Authenticate deliberately lets anonymous requests through: the query
permission layer distinguishes 401 (no identity) from 403 (denied
identity), so rejecting here would collapse the two. A presented but
invalid token is still rejected immediately.
*/
package middleware
