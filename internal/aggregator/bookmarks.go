// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/statflow/statflow/internal/search"
)

const (
	// bookmarkPageSize pages list and delete scans over the bookmark log.
	bookmarkPageSize = 1000

	// DefaultRefreshInterval is the safety margin subtracted from a read
	// bookmark. Events indexed just before the previous run may not have
	// been refreshed into search visibility when that run scanned them;
	// backing the bookmark up re-scans that sliver, and deterministic
	// rollup ids make the replay harmless.
	DefaultRefreshInterval = time.Minute
)

// Bookmark is one entry of the append-only aggregation progress log.
type Bookmark struct {
	AggregationType string
	Date            time.Time
}

// BookmarkStore tracks how far one aggregation has progressed. Entries
// are appended, never updated; the current bookmark is the entry with
// the greatest date. Dates are stored rendered in the aggregation's
// interval layout, which is what makes mixing intervals for one rollup
// impossible to read back.
type BookmarkStore struct {
	engine   search.Engine
	index    string
	aggType  string
	interval Interval
	refresh  time.Duration

	mu    sync.Mutex
	ready bool
}

// NewBookmarkStore creates the store for one aggregation. refresh is
// the read-side safety margin; negative disables it.
func NewBookmarkStore(engine search.Engine, namer search.Namer, aggType string, interval Interval, refresh time.Duration) (*BookmarkStore, error) {
	if engine == nil {
		return nil, errors.New("bookmark store: engine is required")
	}
	if aggType == "" {
		return nil, errors.New("bookmark store: aggregation type is required")
	}
	if refresh == 0 {
		refresh = DefaultRefreshInterval
	}
	return &BookmarkStore{
		engine:   engine,
		index:    namer.BookmarkIndex(),
		aggType:  aggType,
		interval: interval,
		refresh:  refresh,
	}, nil
}

func bookmarkMappings() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"date_detection": false,
			"properties": map[string]any{
				"date":             map[string]any{"type": "date", "format": "date_optional_time"},
				"aggregation_type": map[string]any{"type": "keyword"},
			},
		},
	}
}

// EnsureBookmarkIndex creates the shared bookmark index with its
// mapping. Stores create it lazily on first use; the init command
// provisions it up front so a fresh cluster is complete before any
// aggregation runs.
func EnsureBookmarkIndex(ctx context.Context, engine search.Engine, index string) error {
	exists, err := engine.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("check bookmark index: %w", err)
	}
	if !exists {
		if err := engine.CreateIndex(ctx, index, bookmarkMappings()); err != nil {
			return fmt.Errorf("create bookmark index: %w", err)
		}
	}
	return nil
}

// ensure creates the bookmark index with its mapping on first use.
func (s *BookmarkStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := EnsureBookmarkIndex(ctx, s.engine, s.index); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Set appends a bookmark with the given value, rendered in the
// aggregation's interval layout.
func (s *BookmarkStore) Set(ctx context.Context, value time.Time) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	result, err := s.engine.Bulk(ctx, []search.BulkAction{{
		Index: s.index,
		Doc: map[string]any{
			"date":             value.UTC().Format(s.interval.Layout()),
			"aggregation_type": s.aggType,
		},
	}})
	if err != nil {
		return fmt.Errorf("write bookmark: %w", err)
	}
	if result.Failed > 0 {
		return fmt.Errorf("write bookmark: %w", result.Errors[0])
	}
	return nil
}

// Get returns the newest bookmark, backed up by the refresh margin. The
// second return is false when no bookmark has been written yet.
func (s *BookmarkStore) Get(ctx context.Context) (time.Time, bool, error) {
	if err := s.ensure(ctx); err != nil {
		return time.Time{}, false, err
	}

	res, err := s.engine.Search(ctx, s.index, map[string]any{
		"size":  1,
		"query": s.typeFilter(nil),
		"sort":  []any{map[string]any{"date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read bookmark: %w", err)
	}

	sources := res.Sources()
	if len(sources) == 0 {
		return time.Time{}, false, nil
	}
	raw, _ := sources[0]["date"].(string)
	ts, err := time.Parse(s.interval.Layout(), raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse bookmark %q as %s interval: %w", raw, s.interval, err)
	}
	if s.refresh > 0 {
		ts = ts.Add(-s.refresh)
	}
	return ts, true, nil
}

// List returns bookmarks newest first, optionally bounded by date.
// Zero times leave that bound open; limit caps the page (default 1000).
func (s *BookmarkStore) List(ctx context.Context, start, end time.Time, limit int) ([]Bookmark, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > bookmarkPageSize {
		limit = bookmarkPageSize
	}

	res, err := s.engine.Search(ctx, s.index, map[string]any{
		"size":  limit,
		"query": s.typeFilter(dateRange("date", start, end)),
		"sort":  []any{map[string]any{"date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	var out []Bookmark
	for _, src := range res.Sources() {
		raw, _ := src["date"].(string)
		ts, err := time.Parse(s.interval.Layout(), raw)
		if err != nil {
			return nil, fmt.Errorf("parse bookmark %q as %s interval: %w", raw, s.interval, err)
		}
		out = append(out, Bookmark{AggregationType: s.aggType, Date: ts})
	}
	return out, nil
}

// Delete removes this aggregation's bookmarks in the given date range
// and returns how many were removed. Other aggregations' bookmarks are
// never touched.
func (s *BookmarkStore) Delete(ctx context.Context, start, end time.Time) (int, error) {
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}
	return deleteByQuery(ctx, s.engine, s.index, s.typeFilter(dateRange("date", start, end)), bookmarkPageSize)
}

// typeFilter builds the bool filter selecting this aggregation's
// entries, with an optional extra clause.
func (s *BookmarkStore) typeFilter(extra map[string]any) map[string]any {
	filters := []any{
		map[string]any{"term": map[string]any{"aggregation_type": s.aggType}},
	}
	if extra != nil {
		filters = append(filters, extra)
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

// dateRange builds a range clause over field, or nil when both bounds
// are open.
func dateRange(field string, start, end time.Time) map[string]any {
	bounds := map[string]any{}
	if !start.IsZero() {
		bounds["gte"] = start.UTC().Format(timestampLayout)
	}
	if !end.IsZero() {
		bounds["lte"] = end.UTC().Format(timestampLayout)
	}
	if len(bounds) == 0 {
		return nil
	}
	return map[string]any{"range": map[string]any{field: bounds}}
}
