// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/statflow/statflow/internal/logging"
	"github.com/statflow/statflow/internal/metrics"
	"github.com/statflow/statflow/internal/stats"
)

const (
	// defaultMaxBatchSize bounds one receiver request when the
	// deployment does not configure its own limit.
	defaultMaxBatchSize = 1000

	// maxEventsBodyBytes caps the receiver request body. A full batch
	// of fat events stays well under this.
	maxEventsBodyBytes = 10 << 20
)

// Rejection reasons recorded on the receiver counter.
const (
	rejectUnknownType    = "unknown_type"
	rejectDisabled       = "disabled"
	rejectInvalidPayload = "invalid_payload"
)

// ReceiveEvents accepts usage events for one stream. The body is a
// single event object or an array of them. Each event runs through the
// stream's builders, which stamp request-derived fields and refuse
// payloads missing required ones, then the batch is published to the
// bus. 202 means queued, not indexed.
func (h *Handler) ReceiveEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	name := chi.URLParam(r, "type")

	if !h.registry.HasEventType(name) {
		metrics.ReceiverEventsRejected.WithLabelValues(name, rejectUnknownType).Inc()
		rw.NotFound("unknown event type: " + name)
		return
	}
	if !stats.Enabled(name, h.enabledEvents) {
		metrics.ReceiverEventsRejected.WithLabelValues(name, rejectDisabled).Inc()
		rw.NotFound("event type is disabled: " + name)
		return
	}

	events, err := decodeEvents(w, r)
	if err != nil {
		metrics.ReceiverEventsRejected.WithLabelValues(name, rejectInvalidPayload).Inc()
		rw.BadRequest(err.Error())
		return
	}
	if len(events) == 0 {
		rw.BadRequest("request contains no events")
		return
	}
	if len(events) > h.maxBatchSize {
		rw.BadRequest(fmt.Sprintf("batch of %d events exceeds the limit of %d", len(events), h.maxBatchSize))
		return
	}

	et, err := h.registry.EventType(name)
	if err != nil {
		rw.InternalError("event type lookup failed")
		return
	}

	for i, ev := range events {
		built := ev
		for _, builder := range et.Builders {
			built, err = builder(ctx, r, built)
			if err != nil {
				metrics.ReceiverEventsRejected.WithLabelValues(name, rejectInvalidPayload).Inc()
				rw.BadRequest(fmt.Sprintf("event %d: %s", i, err.Error()))
				return
			}
		}
		events[i] = built
	}

	if err := h.publisher.Publish(ctx, name, events); err != nil {
		logging.CtxError(ctx).Err(err).Str("event_type", name).Msg("Event publish failed")
		rw.ServiceUnavailable("event bus unavailable")
		return
	}

	metrics.ReceiverEventsAccepted.WithLabelValues(name).Add(float64(len(events)))
	rw.Accepted(map[string]any{
		"event_type": name,
		"queued":     len(events),
	})
}

// decodeEvents reads the body as either one event object or an array
// of event objects.
func decodeEvents(w http.ResponseWriter, r *http.Request) ([]map[string]any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventsBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty request body")
	}

	if trimmed[0] == '[' {
		var events []map[string]any
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("malformed event array: %w", err)
		}
		return events, nil
	}

	var single map[string]any
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("malformed event object: %w", err)
	}
	return []map[string]any{single}, nil
}
