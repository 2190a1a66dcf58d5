// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/statflow/statflow/internal/query"
	"github.com/statflow/statflow/internal/stats"
)

// EventPublisher is the slice of the bus publisher the receiver needs.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, events []map[string]any) error
}

// HealthCheck reports whether one dependency is currently usable.
type HealthCheck func(ctx context.Context) bool

// HandlerConfig wires a Handler. Queries must already be restricted to
// the enabled subset; the handler serves exactly what it is given.
type HandlerConfig struct {
	// Queries maps query names to their executors.
	Queries map[string]*query.Executor

	// Permission is the deployment's default query permission. Queries
	// carrying their own override bypass it.
	Permission stats.Permission

	// Registry resolves event types for the receiver endpoint.
	Registry *stats.Registry

	// Publisher queues accepted receiver events.
	Publisher EventPublisher

	// EnabledEvents restricts the receiver to a subset of registered
	// event types. Empty means all.
	EnabledEvents []string

	// MaxBatchSize caps events per receiver request. Zero keeps the
	// default of 1000.
	MaxBatchSize int

	// BusHealth and SearchHealth feed the readiness endpoint. Nil
	// checks count as healthy, for deployments without that dependency.
	BusHealth    HealthCheck
	SearchHealth HealthCheck

	// Version is reported by the health endpoint.
	Version string
}

// Handler implements the HTTP endpoints.
type Handler struct {
	queries       map[string]*query.Executor
	permission    stats.Permission
	registry      *stats.Registry
	publisher     EventPublisher
	enabledEvents []string
	maxBatchSize  int
	busHealth     HealthCheck
	searchHealth  HealthCheck
	version       string
	started       time.Time
}

// NewHandler creates the endpoint handler.
func NewHandler(cfg HandlerConfig) *Handler {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	return &Handler{
		queries:       cfg.Queries,
		permission:    cfg.Permission,
		registry:      cfg.Registry,
		publisher:     cfg.Publisher,
		enabledEvents: cfg.EnabledEvents,
		maxBatchSize:  maxBatch,
		busHealth:     cfg.BusHealth,
		searchHealth:  cfg.SearchHealth,
		version:       cfg.Version,
		started:       time.Now(),
	}
}

// Health reports overall service status with version and uptime.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// HealthLive is the liveness probe. Reaching the handler is the check.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{"status": "alive"})
}

// HealthReady is the readiness probe: the service is ready when its bus
// and search dependencies answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	checks := map[string]bool{
		"bus":    h.check(r.Context(), h.busHealth),
		"search": h.check(r.Context(), h.searchHealth),
	}
	for _, ok := range checks {
		if !ok {
			rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
				"dependencies not ready", checks)
			return
		}
	}
	rw.Success(map[string]any{"status": "ready", "checks": checks})
}

func (h *Handler) check(ctx context.Context, hc HealthCheck) bool {
	if hc == nil {
		return true
	}
	return hc(ctx)
}
