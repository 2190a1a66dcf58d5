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

// TaskQueue matches the task runner drain method. Satisfied by
// *tasks.Runner.
type TaskQueue interface {
	RunOnce(ctx context.Context) (int, error)
}

// TaskRunnerService polls the task queue and executes whatever the CLI
// and the API dispatched. A failed poll is logged and retried on the
// next tick; the bus client reconnects on its own.
type TaskRunnerService struct {
	runner       TaskQueue
	pollInterval time.Duration
	logger       zerolog.Logger
	name         string
}

// NewTaskRunnerService builds the poller. pollInterval falls back to 5
// seconds when zero.
func NewTaskRunnerService(runner TaskQueue, pollInterval time.Duration, logger zerolog.Logger) *TaskRunnerService {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &TaskRunnerService{
		runner:       runner,
		pollInterval: pollInterval,
		logger:       logger.With().Str("service", "task-runner").Logger(),
		name:         "task-runner",
	}
}

// Serve implements suture.Service.
func (s *TaskRunnerService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("poll_interval", s.pollInterval).Msg("Task runner starting")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.runner.RunOnce(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Task poll failed")
				continue
			}
			if n > 0 {
				s.logger.Debug().Int("tasks", n).Msg("Task batch executed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's log lines.
func (s *TaskRunnerService) String() string {
	return s.name
}
