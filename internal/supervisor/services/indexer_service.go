// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventIndexer matches the indexer run method. Satisfied by
// *indexer.Indexer.
type EventIndexer interface {
	EventType() string
	Run(ctx context.Context) (indexed, failed int, err error)
}

// IndexerScheduler drains and indexes queued events on a fixed
// interval. One pass runs every indexer sequentially; a failing event
// type is logged and does not block the others.
type IndexerScheduler struct {
	indexers []EventIndexer
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewIndexerScheduler builds the scheduler. interval falls back to 30
// seconds when zero.
func NewIndexerScheduler(indexers []EventIndexer, interval time.Duration, logger zerolog.Logger) *IndexerScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &IndexerScheduler{
		indexers: indexers,
		interval: interval,
		logger:   logger.With().Str("service", "indexer-scheduler").Logger(),
		name:     "indexer-scheduler",
	}
}

// Serve implements suture.Service. The first pass runs immediately so
// a restart catches up on whatever queued while the daemon was down.
func (s *IndexerScheduler) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("event_types", len(s.indexers)).
		Msg("Indexer scheduler starting")

	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *IndexerScheduler) pass(ctx context.Context) {
	for _, ix := range s.indexers {
		if ctx.Err() != nil {
			return
		}
		indexed, failed, err := ix.Run(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_type", ix.EventType()).Msg("Indexing run failed")
			continue
		}
		if indexed > 0 || failed > 0 {
			s.logger.Info().
				Str("event_type", ix.EventType()).
				Int("indexed", indexed).
				Int("failed", failed).
				Msg("Indexing run complete")
		}
	}
}

// String implements fmt.Stringer for suture's log lines.
func (s *IndexerScheduler) String() string {
	return s.name
}
