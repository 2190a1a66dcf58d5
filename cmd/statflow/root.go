// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/config"
	"github.com/statflow/statflow/internal/logging"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

// errInvalidInput marks failures caused by what the operator typed:
// unknown names, malformed dates, missing arguments. main maps it to
// exit code 2 so scripts can tell operator mistakes from runtime
// failures.
var errInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}

// app carries the loaded configuration and logger into every
// subcommand. The root hook fills it before any RunE fires.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "statflow",
		Short: "Usage statistics pipeline for digital repository platforms",
		Long: `Statflow collects usage events, anonymizes and indexes them, rolls
them up into daily statistics and serves them back over HTTP.

Configuration loads from defaults, an optional YAML file and the
environment; see the project documentation for every key.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithKoanf()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logging.Init(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Caller: cfg.Logging.Caller,
			})
			a.cfg = cfg
			a.logger = logging.Logger()
			return nil
		},
	}

	cmd.AddCommand(
		newServeCommand(a),
		newInitCommand(a),
		newEventsCommand(a),
		newAggregationsCommand(a),
		newQueuesCommand(a),
	)
	return cmd
}

// parseDay reads a date flag. Accepted forms, from coarse to exact:
// 2026-08, 2026-08-24, 2026-08-24T15:04:05.
func parseDay(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02", "2006-01"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, invalidInput("--%s: unparseable date %q", flag, value)
}
