// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/query"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

// stubEngine answers every search with one scripted result or error.
type stubEngine struct {
	result search.Result
	err    error
	calls  int
}

func (s *stubEngine) Search(context.Context, string, map[string]any, ...search.SearchOption) (search.Result, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubEngine) Bulk(context.Context, []search.BulkAction) (search.BulkResult, error) {
	return search.BulkResult{}, nil
}

func (s *stubEngine) IndexExists(context.Context, string) (bool, error) { return true, nil }

func (s *stubEngine) CreateIndex(context.Context, string, map[string]any) error { return nil }

func (s *stubEngine) PutIndexTemplate(context.Context, string, []byte) error { return nil }

func (s *stubEngine) DeleteIndexTemplate(context.Context, string) error { return nil }

func (s *stubEngine) Flush(context.Context, string) error { return nil }

func (s *stubEngine) Reindex(context.Context, string, string) error { return nil }

func histogramEngineResult() search.Result {
	return search.Result{"aggregations": map[string]any{
		"histogram": map[string]any{"buckets": []any{
			map[string]any{
				"key":   float64(1704067200000),
				"value": map[string]any{"value": float64(7)},
			},
		}},
	}}
}

// statsHandler builds a handler over one histogram query named
// record-view-histogram requiring a recid parameter.
func statsHandler(t *testing.T, engine search.Engine, globalPerm stats.Permission, queryPerm stats.Permission) *Handler {
	t.Helper()

	exec, err := query.New(engine, search.Namer{}, stats.QueryConfig{
		Name:            "record-view-histogram",
		Kind:            stats.QueryKindHistogram,
		Index:           "stats-record-view",
		RequiredFilters: map[string]string{"recid": "recid"},
		Permission:      queryPerm,
	}, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	return NewHandler(HandlerConfig{
		Queries:    map[string]*query.Executor{exec.Name(): exec},
		Permission: globalPerm,
		Registry:   stats.NewRegistry(),
	})
}

func postStats(h *Handler, body string, principal *auth.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stats", strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	h.Stats(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	apiErr, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("error object missing: %v", body)
	}
	code, _ := apiErr["code"].(string)
	return code
}

func TestStatsRunsLabeledQueries(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{result: histogramEngineResult()}
	h := statsHandler(t, engine, nil, nil)

	rec := postStats(h, `{
		"views": {"stat": "record-view-histogram", "params": {"recid": "r-1"}},
		"views2": {"stat": "record-view-histogram", "params": {"recid": "r-2"}}
	}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, wrapped := body["success"]; wrapped {
		t.Fatalf("stats response must not carry the envelope: %v", body)
	}
	if len(body) != 2 {
		t.Fatalf("labels = %d, want 2: %v", len(body), body)
	}
	for _, label := range []string{"views", "views2"} {
		res, ok := body[label].(map[string]any)
		if !ok {
			t.Fatalf("label %s = %v", label, body[label])
		}
		if res["type"] != "bucket" || res["key_type"] != "date" {
			t.Errorf("label %s result = %v", label, res)
		}
		buckets, ok := res["buckets"].([]any)
		if !ok || len(buckets) != 1 {
			t.Errorf("label %s buckets = %v", label, res["buckets"])
		}
	}
	if engine.calls != 2 {
		t.Errorf("engine calls = %d, want 2", engine.calls)
	}
}

func TestStatsNullForMissingRollupIndex(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: search.ErrIndexNotFound}
	h := statsHandler(t, engine, nil, nil)

	rec := postStats(h, `{"views": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	v, present := body["views"]
	if !present {
		t.Fatalf("views label missing: %v", body)
	}
	if v != nil {
		t.Errorf("views = %v, want null", v)
	}
}

func TestStatsUnknownQuery(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{}, nil, nil)
	rec := postStats(h, `{"x": {"stat": "no-such-query", "params": {}}}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeUnknownQuery {
		t.Errorf("error code = %s, want %s", code, ErrCodeUnknownQuery)
	}
}

func TestStatsInvalidParams(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{}, nil, nil)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1", "stray": true}}}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeBadRequest {
		t.Errorf("error code = %s, want %s", code, ErrCodeBadRequest)
	}
}

func TestStatsMissingStatField(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{}, nil, nil)
	rec := postStats(h, `{"x": {"params": {"recid": "r-1"}}}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("error code = %s, want VALIDATION_ERROR", code)
	}
}

func TestStatsMalformedBody(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{}, nil, nil)

	for _, body := range []string{"", "{", `{"x": 1}`} {
		rec := postStats(h, body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStatsEmptyRequest(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{}, nil, nil)
	rec := postStats(h, `{}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsUnauthenticatedDenied(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{result: histogramEngineResult()}, auth.Authenticated(), nil)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeUnauthorized {
		t.Errorf("error code = %s, want %s", code, ErrCodeUnauthorized)
	}
}

func TestStatsAuthenticatedPasses(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{result: histogramEngineResult()}, auth.Authenticated(), nil)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`,
		&auth.Principal{Username: "alice", Role: "reader"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestStatsForbidden(t *testing.T) {
	t.Parallel()

	deny := func(context.Context, string, map[string]any) error {
		return auth.ErrForbidden
	}
	h := statsHandler(t, &stubEngine{}, deny, nil)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`,
		&auth.Principal{Username: "mallory", Role: "none"})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeForbidden {
		t.Errorf("error code = %s, want %s", code, ErrCodeForbidden)
	}
}

func TestStatsQueryPermissionOverridesGlobal(t *testing.T) {
	t.Parallel()

	// Global policy allows everyone; the query's own permission denies.
	deny := func(context.Context, string, map[string]any) error {
		return auth.ErrForbidden
	}
	h := statsHandler(t, &stubEngine{}, auth.AllowAll(), deny)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`, nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestStatsEngineFailure(t *testing.T) {
	t.Parallel()

	h := statsHandler(t, &stubEngine{err: errors.New("cluster on fire")}, nil, nil)
	rec := postStats(h, `{"x": {"stat": "record-view-histogram", "params": {"recid": "r-1"}}}`, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeInternalError {
		t.Errorf("error code = %s, want %s", code, ErrCodeInternalError)
	}
}
