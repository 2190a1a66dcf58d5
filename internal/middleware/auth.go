// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package middleware

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/logging"
)

// Authenticate verifies a presented bearer token and attaches the
// caller identity to the request context. Requests without an
// Authorization header pass through anonymously; whether anonymous
// access suffices is the permission layer's call. A presented but
// invalid token is rejected immediately.
func Authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "invalid authorization header")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logging.CtxWarn(r.Context()).Err(err).Msg("Bearer token rejected")
				unauthorized(w, "invalid token")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), &auth.Principal{
				Username: claims.Username,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	body := map[string]any{
		"success": false,
		"error":   map[string]any{"code": "UNAUTHORIZED", "message": message},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode error response")
	}
}
