// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package auth provides bearer-token authentication and per-query
// authorization for the statistics API.
//
// Authentication is stateless: callers present a JWT signed with the
// shared HMAC secret, the HTTP middleware verifies it and attaches a
// Principal to the request context. Authorization is a separate step
// evaluated per query label through a permission function selected by
// the permission_factory configuration key:
//
//   - allow-all: every caller, authenticated or not, may run queries
//   - authenticated: any caller with a verified token may run queries
//   - casbin: a Casbin policy decides per (subject, query name)
//
// The two failure modes stay distinct so the API can answer 401 for a
// missing identity and 403 for a denied one:
//
//	err := permission(ctx, "record-view-histogram", params)
//	switch {
//	case errors.Is(err, auth.ErrUnauthenticated): // 401
//	case errors.Is(err, auth.ErrForbidden):       // 403
//	}
//
// # Casbin policy
//
// The casbin factory loads an RBAC model and policy from the configured
// paths, falling back to embedded defaults that grant the viewer and
// admin roles every query:
//
//	p, admin, *, run
//	p, viewer, *, run
//
// Policies are matched on the query name, so operators can restrict a
// single expensive query to one role:
//
//	p, analyst, bucket-file-download-histogram, run
//	g, alice, analyst
package auth
