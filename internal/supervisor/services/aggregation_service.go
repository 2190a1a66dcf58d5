// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/aggregator"
)

// Rollup matches the aggregation run method. Satisfied by
// *aggregator.Aggregator.
type Rollup interface {
	Name() string
	Run(ctx context.Context, params aggregator.RunParams) (aggregator.RunResult, error)
}

// AggregationScheduler advances every registered aggregation on a
// fixed interval. Passes run the rollups one at a time in registration
// order, so two runs of the same rollup can never race on its bookmark.
type AggregationScheduler struct {
	rollups  []Rollup
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewAggregationScheduler builds the scheduler. interval falls back to
// one hour when zero.
func NewAggregationScheduler(rollups []Rollup, interval time.Duration, logger zerolog.Logger) *AggregationScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AggregationScheduler{
		rollups:  rollups,
		interval: interval,
		logger:   logger.With().Str("service", "aggregation-scheduler").Logger(),
		name:     "aggregation-scheduler",
	}
}

// Serve implements suture.Service. The first pass runs immediately;
// scheduled passes resume from each rollup's bookmark and advance it.
func (s *AggregationScheduler) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("aggregations", len(s.rollups)).
		Msg("Aggregation scheduler starting")

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

func (s *AggregationScheduler) pass(ctx context.Context) {
	for _, rollup := range s.rollups {
		if ctx.Err() != nil {
			return
		}
		res, err := rollup.Run(ctx, aggregator.RunParams{UpdateBookmark: true})
		if err != nil {
			s.logger.Warn().Err(err).Str("aggregation", rollup.Name()).Msg("Aggregation run failed")
			continue
		}
		if res.Written > 0 {
			s.logger.Info().
				Str("aggregation", rollup.Name()).
				Int("written", res.Written).
				Int("steps", res.Steps).
				Msg("Aggregation run complete")
		}
	}
}

// String implements fmt.Stringer for suture's log lines.
func (s *AggregationScheduler) String() string {
	return s.name
}
