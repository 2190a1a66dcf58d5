// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package query executes registered statistics queries over rollup
// indices. Two shapes exist: date histograms bucketing rollups over
// time, and terms queries grouping them by field values with one
// nesting level per aggregated field. Both validate caller parameters
// against the query's declared required filters before touching the
// engine.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

const (
	timestampLayout = "2006-01-02T15:04:05"

	// defaultMaxBucketSize caps terms buckets per nesting level.
	defaultMaxBucketSize = 10000
)

// ErrInvalidConfig reports a query configuration the constructor
// refused. Startup fails on it.
var ErrInvalidConfig = errors.New("invalid query configuration")

// ErrInvalidInput reports caller parameters that fail validation. The
// HTTP layer maps it to a 400 response.
var ErrInvalidInput = errors.New("invalid query input")

// histogramIntervals are the calendar units a date histogram accepts.
var histogramIntervals = map[string]bool{
	"year":    true,
	"quarter": true,
	"month":   true,
	"week":    true,
	"day":     true,
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339,
	"2006-01",
	"2006",
}

// Executor runs one registered statistics query.
type Executor struct {
	engine           search.Engine
	name             string
	kind             stats.QueryKind
	index            string
	timeField        string
	defaultInterval  string
	requiredFilters  map[string]string
	aggregatedFields []string
	metricFields     map[string]stats.MetricField
	copyFields       map[string]stats.QueryCopyField
	permission       stats.Permission
	maxBucketSize    int
	logger           zerolog.Logger
}

// New builds the executor for one registered query. maxBucketSize
// falls back to its default when zero.
func New(engine search.Engine, namer search.Namer, cfg stats.QueryConfig, maxBucketSize int, logger zerolog.Logger) (*Executor, error) {
	if engine == nil {
		return nil, errors.New("query: engine is required")
	}
	if cfg.Name == "" || cfg.Index == "" {
		return nil, fmt.Errorf("%w: name and index are required", ErrInvalidConfig)
	}

	switch cfg.Kind {
	case stats.QueryKindHistogram, stats.QueryKindTerms:
	default:
		return nil, fmt.Errorf("%w: query %s has unknown kind %q", ErrInvalidConfig, cfg.Name, cfg.Kind)
	}
	if cfg.Kind == stats.QueryKindTerms && len(cfg.AggregatedFields) == 0 {
		return nil, fmt.Errorf("%w: terms query %s needs at least one aggregated field", ErrInvalidConfig, cfg.Name)
	}

	interval := cfg.Interval
	if interval == "" {
		interval = "day"
	}
	if cfg.Kind == stats.QueryKindHistogram && !histogramIntervals[interval] {
		return nil, fmt.Errorf("%w: query %s has unsupported default interval %q", ErrInvalidConfig, cfg.Name, interval)
	}

	metricFields := cfg.MetricFields
	if metricFields == nil {
		metricFields = map[string]stats.MetricField{
			"value": {Type: "sum", Field: "count"},
		}
	}
	for dst, mf := range metricFields {
		if !stats.ValidMetricType(mf.Type) {
			return nil, fmt.Errorf("%w: metric %q of query %s has unknown type %q", ErrInvalidConfig, dst, cfg.Name, mf.Type)
		}
		if dst == "top_hit" || dst == "key" {
			return nil, fmt.Errorf("%w: metric name %q is reserved", ErrInvalidConfig, dst)
		}
	}

	timeField := cfg.TimeField
	if timeField == "" {
		timeField = "timestamp"
	}
	if maxBucketSize <= 0 {
		maxBucketSize = defaultMaxBucketSize
	}

	return &Executor{
		engine:           engine,
		name:             cfg.Name,
		kind:             cfg.Kind,
		index:            namer.Index(cfg.Index),
		timeField:        timeField,
		defaultInterval:  interval,
		requiredFilters:  cfg.RequiredFilters,
		aggregatedFields: cfg.AggregatedFields,
		metricFields:     metricFields,
		copyFields:       cfg.CopyFields,
		permission:       cfg.Permission,
		maxBucketSize:    maxBucketSize,
		logger:           logger.With().Str("query", cfg.Name).Logger(),
	}, nil
}

// Name returns the query name.
func (e *Executor) Name() string { return e.name }

// Kind returns the query's result shape.
func (e *Executor) Kind() stats.QueryKind { return e.kind }

// Permission returns the query's own permission override, or nil when
// the global policy applies.
func (e *Executor) Permission() stats.Permission { return e.permission }

// Run validates params, executes the query and shapes the result.
// Parameter problems return ErrInvalidInput; a missing rollup index
// surfaces as the engine's not-found error for the caller to map.
func (e *Executor) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	p, err := e.parseParams(params)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if e.kind == stats.QueryKindHistogram {
		body = e.histogramBody(p)
	} else {
		body = e.termsBody(p)
	}

	e.logger.Debug().Str("index", e.index).Msg("Executing statistics query")

	res, err := e.engine.Search(ctx, e.index, body)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.name, err)
	}

	if e.kind == stats.QueryKindHistogram {
		return e.histogramResult(res, p.interval), nil
	}
	return e.termsResult(res), nil
}

type runParams struct {
	interval string
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
	filters  map[string]any
}

// parseParams splits the caller's parameters into dates, the histogram
// interval and filter values, then checks the filter set matches the
// declared required filters exactly.
func (e *Executor) parseParams(params map[string]any) (runParams, error) {
	out := runParams{interval: e.defaultInterval, filters: map[string]any{}}

	for name, value := range params {
		switch name {
		case "start_date":
			t, err := parseDate(name, value)
			if err != nil {
				return out, err
			}
			out.start, out.hasStart = t, true
		case "end_date":
			t, err := parseDate(name, value)
			if err != nil {
				return out, err
			}
			out.end, out.hasEnd = t, true
		case "interval":
			// Terms queries have no interval; an unexpected one fails
			// the filter match below like any other stray parameter.
			if e.kind != stats.QueryKindHistogram {
				out.filters[name] = value
				continue
			}
			s, ok := value.(string)
			if !ok {
				return out, fmt.Errorf("%w: interval must be a string", ErrInvalidInput)
			}
			out.interval = s
		default:
			out.filters[name] = value
		}
	}

	if e.kind == stats.QueryKindHistogram && !histogramIntervals[out.interval] {
		return out, fmt.Errorf("%w: query %s does not support histogram interval %q", ErrInvalidInput, e.name, out.interval)
	}

	if !e.filtersMatch(out.filters) {
		return out, fmt.Errorf("%w: query %s requires exactly the parameters %v, got %v",
			ErrInvalidInput, e.name, sortedKeys(e.requiredFilters), sortedKeys(out.filters))
	}
	return out, nil
}

func (e *Executor) filtersMatch(filters map[string]any) bool {
	if len(filters) != len(e.requiredFilters) {
		return false
	}
	for param := range e.requiredFilters {
		if _, ok := filters[param]; !ok {
			return false
		}
	}
	return true
}

func parseDate(name string, value any) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s must be a date string", ErrInvalidInput, name)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %s %q", ErrInvalidInput, name, s)
}

// baseBody builds the hitless filtered query shared by both shapes.
func (e *Executor) baseBody(p runParams) map[string]any {
	body := map[string]any{"size": 0}

	var filter []any
	if p.hasStart || p.hasEnd {
		bounds := map[string]any{}
		if p.hasStart {
			bounds["gte"] = p.start.Format(timestampLayout)
		}
		if p.hasEnd {
			bounds["lte"] = p.end.Format(timestampLayout)
		}
		filter = append(filter, map[string]any{"range": map[string]any{e.timeField: bounds}})
	}
	for _, param := range sortedKeys(p.filters) {
		filter = append(filter, map[string]any{
			"term": map[string]any{e.requiredFilters[param]: p.filters[param]},
		})
	}
	if len(filter) > 0 {
		body["query"] = map[string]any{"bool": map[string]any{"filter": filter}}
	}
	return body
}

// leafAggs builds the metric sub-aggregations evaluated per bucket,
// plus the top hit sample when copy fields need one.
func (e *Executor) leafAggs() map[string]any {
	aggs := map[string]any{}
	for dst, mf := range e.metricFields {
		metric := map[string]any{"field": mf.Field}
		for k, v := range mf.Options {
			metric[k] = v
		}
		aggs[dst] = map[string]any{mf.Type: metric}
	}
	if len(e.copyFields) > 0 {
		aggs["top_hit"] = map[string]any{
			"top_hits": map[string]any{
				"size": 1,
				"sort": []any{map[string]any{e.timeField: map[string]any{"order": "desc"}}},
			},
		}
	}
	return aggs
}

func (e *Executor) histogramBody(p runParams) map[string]any {
	body := e.baseBody(p)
	hist := map[string]any{
		"date_histogram": map[string]any{
			"field":             e.timeField,
			"calendar_interval": p.interval,
		},
	}
	if sub := e.leafAggs(); len(sub) > 0 {
		hist["aggs"] = sub
	}
	body["aggs"] = map[string]any{"histogram": hist}
	return body
}

func (e *Executor) termsBody(p runParams) map[string]any {
	body := e.baseBody(p)

	// Built innermost out: the last aggregated field carries the
	// metrics, every outer field wraps the previous level.
	var nested map[string]any
	inner := e.leafAggs()
	for i := len(e.aggregatedFields) - 1; i >= 0; i-- {
		node := map[string]any{
			"terms": map[string]any{"field": e.aggregatedFields[i], "size": e.maxBucketSize},
		}
		if nested != nil {
			node["aggs"] = nested
		} else if len(inner) > 0 {
			node["aggs"] = inner
		}
		nested = map[string]any{e.aggregatedFields[i]: node}
	}
	body["aggs"] = nested
	return body
}

func (e *Executor) histogramResult(res search.Result, interval string) map[string]any {
	raw := res.Buckets("histogram")
	buckets := make([]any, 0, len(raw))
	for _, b := range raw {
		buckets = append(buckets, e.leafBucket(map[string]any{"key": b["key"]}, b))
	}
	return map[string]any{
		"type":     "bucket",
		"key_type": "date",
		"interval": interval,
		"buckets":  buckets,
	}
}

func (e *Executor) termsResult(res search.Result) map[string]any {
	aggs, _ := search.NestedMap(res, "aggregations")
	return e.buildBuckets(aggs, e.aggregatedFields, map[string]any{})
}

// buildBuckets mirrors the response nesting: every aggregated field
// contributes one bucket level, metrics land on the innermost one.
func (e *Executor) buildBuckets(agg map[string]any, fields []string, out map[string]any) map[string]any {
	if len(fields) == 0 {
		if key, ok := agg["key"]; ok {
			out["key"] = key
		}
		return e.leafBucket(out, agg)
	}

	field := fields[0]
	raw, _ := search.NestedSlice(agg, field, "buckets")
	children := make([]any, 0, len(raw))
	for _, v := range raw {
		sub, ok := v.(map[string]any)
		if !ok {
			continue
		}
		children = append(children, e.buildBuckets(sub, fields[1:], map[string]any{"key": sub["key"]}))
	}
	out["type"] = "bucket"
	out["field"] = field
	out["key_type"] = "terms"
	out["buckets"] = children
	return out
}

// leafBucket fills one result bucket with its metric values and the
// configured copy fields from the bucket's sampled top hit.
func (e *Executor) leafBucket(out, agg map[string]any) map[string]any {
	for _, dst := range sortedKeys(e.metricFields) {
		out[dst] = search.MetricValue(agg[dst])
	}
	if len(e.copyFields) == 0 {
		return out
	}
	topHit := search.TopHitSource(agg)
	if topHit == nil {
		return out
	}
	for _, dst := range sortedKeys(e.copyFields) {
		cf := e.copyFields[dst]
		switch {
		case cf.Fn != nil:
			out[dst] = cf.Fn(out, topHit)
		case cf.Source != "":
			if v, ok := topHit[cf.Source]; ok {
				out[dst] = v
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
