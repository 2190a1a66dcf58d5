// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// StreamManager matches the stream lifecycle operations the keeper
// needs. Satisfied by *eventbus.StreamManager.
type StreamManager interface {
	EnsureStream(ctx context.Context) (jetstream.Stream, error)
	EnsureConsumer(ctx context.Context, eventType string) error
	IsHealthy(ctx context.Context) bool
}

// StreamKeeperService declares the event stream and its durable
// consumers on startup and watches them afterwards. When the stream
// disappears, the service returns an error; the supervisor restart
// runs the declaration again, which recreates it.
type StreamKeeperService struct {
	manager      StreamManager
	consumers    []string
	pollInterval time.Duration
	logger       zerolog.Logger
	name         string
}

// NewStreamKeeperService wraps a stream manager. consumers lists the
// subject tokens needing durable consumers, the registered event types
// plus the task token.
func NewStreamKeeperService(manager StreamManager, consumers []string, logger zerolog.Logger) *StreamKeeperService {
	return &StreamKeeperService{
		manager:      manager,
		consumers:    consumers,
		pollInterval: 30 * time.Second,
		logger:       logger.With().Str("service", "stream-keeper").Logger(),
		name:         "stream-keeper",
	}
}

// Serve implements suture.Service.
func (s *StreamKeeperService) Serve(ctx context.Context) error {
	if err := s.declare(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if !s.manager.IsHealthy(ctx) {
				// The restart re-runs declare and recreates the stream.
				return errors.New("event stream is gone")
			}
		}
	}
}

func (s *StreamKeeperService) declare(ctx context.Context) error {
	if _, err := s.manager.EnsureStream(ctx); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	for _, name := range s.consumers {
		if err := s.manager.EnsureConsumer(ctx, name); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("consumers", len(s.consumers)).Msg("Stream and consumers declared")
	return nil
}

// String implements fmt.Stringer for suture's log lines.
func (s *StreamKeeperService) String() string {
	return s.name
}
