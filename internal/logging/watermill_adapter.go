// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger implements watermill.LoggerAdapter using zerolog as the
// backend, so the event bus transport logs through the same pipeline as the
// rest of the application.
//
// Usage:
//
//	wmLogger := logging.NewWatermillLogger(logging.Logger())
//	publisher, err := nats.NewPublisher(cfg, wmLogger)
type WatermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger creates a watermill.LoggerAdapter backed by the given
// zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger}
}

// Error logs an error message with the given fields.
func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	addLogFields(w.logger.Error().Err(err), fields).Msg(msg)
}

// Info logs an informational message with the given fields.
func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	addLogFields(w.logger.Info(), fields).Msg(msg)
}

// Debug logs a debug message with the given fields.
func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	addLogFields(w.logger.Debug(), fields).Msg(msg)
}

// Trace logs a trace message with the given fields.
func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	addLogFields(w.logger.Trace(), fields).Msg(msg)
}

// With returns a logger with the fields attached to every message.
func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := w.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillLogger{logger: ctx.Logger()}
}

func addLogFields(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
