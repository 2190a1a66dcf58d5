// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package auth

import "context"

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the verified caller identity attached to a request
// context by the authentication middleware.
type Principal struct {
	Username string
	Role     string
}

// WithPrincipal returns a context carrying the caller identity.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// FromContext returns the caller identity, or false for anonymous
// requests.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok && p != nil
}
