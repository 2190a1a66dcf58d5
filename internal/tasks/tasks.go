// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package tasks moves pipeline work onto the bus. The CLI dispatches a
// task request instead of touching the search cluster itself; a running
// server drains the task subject and executes requests against its own
// pipeline, so operators trigger indexing and aggregation without
// standing up a second set of connections.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/eventbus"
	"github.com/statflow/statflow/internal/metrics"
)

// Wire names of the dispatched task types.
const (
	TypeProcessEvents   = "process-events"
	TypeAggregateEvents = "aggregate-events"
)

// AggregateParams selects what an aggregation task runs over. A nil
// Start or End leaves the corresponding bound to the bookmark logic.
type AggregateParams struct {
	Aggregations   []string
	Start          *time.Time
	End            *time.Time
	UpdateBookmark bool
}

// Request is one background task on the wire.
type Request struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// process-events
	EventTypes []string `json:"event_types,omitempty"`

	// aggregate-events
	Aggregations   []string   `json:"aggregations,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	UpdateBookmark *bool      `json:"update_bookmark,omitempty"`
}

// publisher is the slice of eventbus.Publisher the dispatcher needs.
type publisher interface {
	PublishRaw(ctx context.Context, subject string, payload []byte) error
	Exchange() string
}

// Dispatcher publishes task requests to the task subject.
type Dispatcher struct {
	pub    publisher
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher over an existing publisher.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewDispatcher(pub *eventbus.Publisher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, logger: logger}
}

// ProcessEvents dispatches an indexing run for the given event types and
// returns the task id. An empty list means every registered type; the
// executor resolves the registry on its side.
func (d *Dispatcher) ProcessEvents(ctx context.Context, eventTypes []string) (string, error) {
	return d.dispatch(ctx, Request{
		Type:       TypeProcessEvents,
		EventTypes: eventTypes,
	})
}

// AggregateEvents dispatches an aggregation run and returns the task id.
func (d *Dispatcher) AggregateEvents(ctx context.Context, params AggregateParams) (string, error) {
	update := params.UpdateBookmark
	return d.dispatch(ctx, Request{
		Type:           TypeAggregateEvents,
		Aggregations:   params.Aggregations,
		StartDate:      params.Start,
		EndDate:        params.End,
		UpdateBookmark: &update,
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (string, error) {
	req.ID = uuid.NewString()

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("serialize task %s: %w", req.Type, err)
	}

	subject := eventbus.TaskSubject(d.pub.Exchange())
	if err := d.pub.PublishRaw(ctx, subject, payload); err != nil {
		return "", fmt.Errorf("dispatch task %s: %w", req.Type, err)
	}

	metrics.RecordTaskDispatch(req.Type)
	d.logger.Info().
		Str("task_id", req.ID).
		Str("task", req.Type).
		Str("subject", subject).
		Msg("Task dispatched")
	return req.ID, nil
}

// Executor runs dispatched tasks against the pipeline. The supervisor
// wires it to the same indexers and aggregators the schedulers use.
type Executor interface {
	ProcessEvents(ctx context.Context, eventTypes []string) error
	AggregateEvents(ctx context.Context, params AggregateParams) error
}

// drainer is the slice of eventbus.Consumer the runner needs.
type drainer interface {
	Drain(ctx context.Context, eventType string, handler func(event map[string]any)) (int, error)
}

// Runner drains the task subject and executes each request in arrival
// order. Requests are acknowledged on decode, like events: a task that
// fails mid-run is not redelivered, it is logged and counted, and the
// operator re-dispatches. Both task types are idempotent, so the
// occasional duplicate delivery is harmless.
type Runner struct {
	consumer drainer
	exec     Executor
	logger   zerolog.Logger
}

// NewRunner creates a task runner over an existing drain consumer.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRunner(consumer *eventbus.Consumer, exec Executor, logger zerolog.Logger) *Runner {
	return &Runner{consumer: consumer, exec: exec, logger: logger}
}

// RunOnce drains everything currently queued on the task subject and
// executes it. It returns the number of tasks handled, counting failed
// executions too.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	return r.consumer.Drain(ctx, eventbus.TaskToken, func(event map[string]any) {
		req, err := requestFromEvent(event)
		if err != nil {
			r.logger.Error().Err(err).Msg("Dropping undecodable task request")
			return
		}
		r.execute(ctx, req)
	})
}

func (r *Runner) execute(ctx context.Context, req Request) {
	start := time.Now()
	logger := r.logger.With().Str("task_id", req.ID).Str("task", req.Type).Logger()

	var err error
	switch req.Type {
	case TypeProcessEvents:
		err = r.exec.ProcessEvents(ctx, req.EventTypes)
	case TypeAggregateEvents:
		update := true
		if req.UpdateBookmark != nil {
			update = *req.UpdateBookmark
		}
		err = r.exec.AggregateEvents(ctx, AggregateParams{
			Aggregations:   req.Aggregations,
			Start:          req.StartDate,
			End:            req.EndDate,
			UpdateBookmark: update,
		})
	default:
		err = fmt.Errorf("unknown task type %q", req.Type)
	}

	metrics.RecordTaskExecution(req.Type, err)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Task failed")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("Task completed")
}

// requestFromEvent decodes the drained map back into a Request. The
// consumer hands decoded JSON maps to every handler, so tasks take one
// extra round trip through the serializer.
func requestFromEvent(event map[string]any) (Request, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}
