// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package services

import (
	"context"
	"errors"
	"time"
)

// BusServer matches the embedded bus server lifecycle. Satisfied by
// *eventbus.EmbeddedServer.
type BusServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BusServerService supervises an already-started embedded bus server.
// The server must be running before the tree starts because publishers
// and consumers connect to it during wiring; the service's job is to
// notice when it dies and to shut it down on cancellation.
//
// An unexpected stop returns an error. The restart cannot revive the
// broker, so the layer's failure backoff escalates and the outage is
// loud in the logs instead of silently swallowed.
type BusServerService struct {
	server          BusServer
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewBusServerService wraps a running embedded server.
func NewBusServerService(server BusServer, shutdownTimeout time.Duration) *BusServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BusServerService{
		server:          server,
		pollInterval:    5 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "bus-server",
	}
}

// Serve implements suture.Service.
func (s *BusServerService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return errors.New("embedded bus server is not running")
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()

		case <-ticker.C:
			if !s.server.IsRunning() {
				return errors.New("embedded bus server stopped unexpectedly")
			}
		}
	}
}

// String implements fmt.Stringer for suture's log lines.
func (s *BusServerService) String() string {
	return s.name
}
