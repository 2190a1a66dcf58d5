// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/middleware"
)

// RouterConfig carries everything the router needs to assemble the
// middleware stack around the handlers.
type RouterConfig struct {
	Handler *Handler

	// Verifier checks bearer tokens. Nil runs the API open: every
	// request is anonymous and only permissive queries succeed.
	Verifier *auth.Verifier

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// NewRouter assembles the HTTP routes. The two ingest/query endpoints
// sit at the root because their paths are part of the external
// contract; health and metrics follow the usual service layout.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints skip rate limiting so probes never flap under
	// load.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", cfg.Handler.Health)
		r.Get("/live", cfg.Handler.HealthLive)
		r.Get("/ready", cfg.Handler.HealthReady)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitDisabled))
		r.Use(middleware.Metrics())
		if cfg.Verifier != nil {
			r.Use(middleware.Authenticate(cfg.Verifier))
		}

		r.Post("/stats", cfg.Handler.Stats)
		if cfg.Handler.publisher != nil {
			r.Post("/events/{type}", cfg.Handler.ReceiveEvents)
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
