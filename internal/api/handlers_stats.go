// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/logging"
	"github.com/statflow/statflow/internal/metrics"
	"github.com/statflow/statflow/internal/query"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/validation"
)

// maxStatsBodyBytes caps the /stats request body. Query requests are
// small; anything close to this limit is malformed or hostile.
const maxStatsBodyBytes = 1 << 20

// statRequest is one labeled query in a /stats request.
type statRequest struct {
	Stat   string         `json:"stat" validate:"required"`
	Params map[string]any `json:"params"`
}

// Stats runs a batch of registered queries. The contract is fixed: the
// body maps labels to {stat, params}, the response maps the same labels
// to results. A query whose rollup index does not exist yet yields
// null under its label; every other failure fails the whole request.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	var body map[string]statRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStatsBodyBytes))
	if err := dec.Decode(&body); err != nil {
		rw.BadRequest("malformed request body: " + err.Error())
		return
	}
	if len(body) == 0 {
		rw.BadRequest("request names no queries")
		return
	}

	// Labels are processed in sorted order so the failing label of a
	// bad batch is deterministic.
	labels := make([]string, 0, len(body))
	for label := range body {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	results := make(map[string]any, len(body))
	for _, label := range labels {
		req := body[label]
		if verr := validation.ValidateStruct(req); verr != nil {
			apiErr := verr.ToAPIError()
			rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code,
				fmt.Sprintf("label %q: %s", label, apiErr.Message), apiErr.Details)
			return
		}

		exec, ok := h.queries[req.Stat]
		if !ok {
			rw.Error(http.StatusBadRequest, ErrCodeUnknownQuery,
				fmt.Sprintf("label %q names unknown query %q", label, req.Stat))
			return
		}

		if err := h.allowed(ctx, exec, req); err != nil {
			metrics.RecordQueryDenied(req.Stat)
			if errors.Is(err, auth.ErrUnauthenticated) {
				rw.Unauthorized("authentication required for query " + req.Stat)
				return
			}
			rw.Forbidden("permission denied for query " + req.Stat)
			return
		}

		start := time.Now()
		res, err := exec.Run(ctx, req.Params)
		metrics.RecordQuery(req.Stat, time.Since(start), err)

		switch {
		case errors.Is(err, search.ErrIndexNotFound):
			// Nothing aggregated yet for this query's rollup.
			results[label] = nil
		case errors.Is(err, query.ErrInvalidInput):
			rw.BadRequest(fmt.Sprintf("label %q: %s", label, err.Error()))
			return
		case err != nil:
			logging.CtxError(ctx).Err(err).Str("query", req.Stat).Msg("Statistics query failed")
			rw.InternalError("query " + req.Stat + " failed")
			return
		default:
			results[label] = res
		}
	}

	rw.Raw(http.StatusOK, results)
}

// allowed applies the query's own permission when it has one, the
// deployment default otherwise. A nil permission allows everyone.
func (h *Handler) allowed(ctx context.Context, exec *query.Executor, req statRequest) error {
	permission := exec.Permission()
	if permission == nil {
		permission = h.permission
	}
	if permission == nil {
		return nil
	}
	return permission(ctx, req.Stat, req.Params)
}
