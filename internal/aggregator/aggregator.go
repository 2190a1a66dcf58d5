// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package aggregator compresses raw usage events into per-interval
// rollup documents and tracks its own progress through an append-only
// bookmark log.
//
// Each run walks the time range between the last bookmark (or an
// explicit start) and now, one interval step at a time. Every step
// groups events by the aggregation key with a partitioned terms
// aggregation, samples a representative event per key, evaluates the
// configured metrics and writes one rollup document per key with a
// deterministic id, so re-running a range overwrites instead of
// double counting.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/metrics"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

const (
	// timestampLayout is the canonical second-precision form shared with
	// the raw event documents.
	timestampLayout = "2006-01-02T15:04:05"

	// updatedLayout stamps rollup writes with microsecond ingest time.
	updatedLayout = "2006-01-02T15:04:05.000000"

	// defaultMaxBucketSize caps how many keys one terms partition may
	// return. Key populations above it are split across partitions.
	defaultMaxBucketSize = 10000

	// cardinalityPrecision is the precision threshold of the key count
	// estimate that decides how many partitions a step needs.
	cardinalityPrecision = 3000
)

// ErrInvalidConfig reports an aggregation configuration the constructor
// refused. Startup fails on it rather than running a miswired rollup.
var ErrInvalidConfig = errors.New("invalid aggregation configuration")

// FilterRobots is the default query modifier: it excludes events
// flagged as robot traffic from aggregation.
func FilterRobots(query map[string]any) map[string]any {
	return AppendFilter(query, map[string]any{"term": map[string]any{"is_robot": false}})
}

// FilterMachines excludes events flagged as machine traffic.
func FilterMachines(query map[string]any) map[string]any {
	return AppendFilter(query, map[string]any{"term": map[string]any{"is_machine": false}})
}

// AppendFilter adds one clause to the query's bool filter list. Custom
// query modifiers build on it.
func AppendFilter(query, clause map[string]any) map[string]any {
	boolQuery, ok := search.NestedMap(query, "query", "bool")
	if !ok {
		return query
	}
	filters, _ := boolQuery["filter"].([]any)
	boolQuery["filter"] = append(filters, clause)
	return query
}

// Aggregator computes one registered rollup over a raw event stream.
type Aggregator struct {
	engine        search.Engine
	namer         search.Namer
	bookmarks     *BookmarkStore
	name          string
	eventType     string
	field         string
	interval      Interval
	indexInterval Interval
	metricFields  map[string]stats.MetricField
	copyFields    map[string]stats.CopyField
	modifiers     []stats.QueryModifier
	maxBucketSize int
	logger        zerolog.Logger
	now           func() time.Time
}

// New builds the aggregator for one registered rollup. maxBucketSize
// and refresh fall back to their defaults when zero.
func New(engine search.Engine, namer search.Namer, cfg stats.AggregationConfig, maxBucketSize int, refresh time.Duration, logger zerolog.Logger) (*Aggregator, error) {
	if engine == nil {
		return nil, errors.New("aggregator: engine is required")
	}
	if cfg.Name == "" || cfg.EventType == "" || cfg.AggregationField == "" {
		return nil, fmt.Errorf("%w: name, event type and aggregation field are required", ErrInvalidConfig)
	}

	interval, indexInterval, err := resolveIntervals(cfg)
	if err != nil {
		return nil, err
	}
	for dst, mf := range cfg.MetricFields {
		if !stats.ValidMetricType(mf.Type) {
			return nil, fmt.Errorf("%w: metric %q has unknown type %q", ErrInvalidConfig, dst, mf.Type)
		}
		if dst == "top_hit" || dst == "last_update" {
			return nil, fmt.Errorf("%w: metric name %q is reserved", ErrInvalidConfig, dst)
		}
	}

	if maxBucketSize <= 0 {
		maxBucketSize = defaultMaxBucketSize
	}
	modifiers := cfg.QueryModifiers
	if modifiers == nil {
		modifiers = []stats.QueryModifier{FilterRobots}
	}

	bookmarks, err := NewBookmarkStore(engine, namer, cfg.Name, interval, refresh)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		engine:        engine,
		namer:         namer,
		bookmarks:     bookmarks,
		name:          cfg.Name,
		eventType:     cfg.EventType,
		field:         cfg.AggregationField,
		interval:      interval,
		indexInterval: indexInterval,
		metricFields:  cfg.MetricFields,
		copyFields:    cfg.CopyFields,
		modifiers:     modifiers,
		maxBucketSize: maxBucketSize,
		logger:        logger.With().Str("aggregation", cfg.Name).Logger(),
		now:           time.Now,
	}, nil
}

func resolveIntervals(cfg stats.AggregationConfig) (Interval, Interval, error) {
	name := cfg.AggregationInterval
	if name == "" {
		name = string(IntervalDay)
	}
	interval, err := ParseInterval(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	name = cfg.IndexInterval
	if name == "" {
		name = string(IntervalMonth)
	}
	indexInterval, err := ParseInterval(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if interval.rank() > indexInterval.rank() {
		return "", "", fmt.Errorf("%w: aggregation interval %s is longer than index interval %s", ErrInvalidConfig, interval, indexInterval)
	}
	return interval, indexInterval, nil
}

// Name returns the aggregation name.
func (a *Aggregator) Name() string { return a.name }

// Bookmarks exposes the aggregation's progress log.
func (a *Aggregator) Bookmarks() *BookmarkStore { return a.bookmarks }

// RunParams bounds one aggregation run. A zero Start resumes from the
// bookmark, or from the oldest indexed event when there is none. A zero
// End means now; a future End is clamped to now.
type RunParams struct {
	Start          time.Time
	End            time.Time
	UpdateBookmark bool
}

// RunResult summarizes one aggregation run.
type RunResult struct {
	Written int
	Steps   int
}

// Run aggregates every interval step in the requested range. A failed
// step aborts the run: rollups written by earlier steps stay valid, and
// the bookmark only advances after every step succeeded.
func (a *Aggregator) Run(ctx context.Context, params RunParams) (RunResult, error) {
	started := a.now()
	result, err := a.run(ctx, params)
	metrics.RecordAggregationRun(a.name, a.now().Sub(started), result.Written, err)
	return result, err
}

func (a *Aggregator) run(ctx context.Context, params RunParams) (RunResult, error) {
	var out RunResult

	alias := a.namer.EventAlias(a.eventType)
	exists, err := a.engine.IndexExists(ctx, alias)
	if err != nil {
		return out, fmt.Errorf("check event index: %w", err)
	}
	if !exists {
		a.logger.Debug().Msg("No raw events indexed yet, nothing to aggregate")
		return out, nil
	}

	previous, hasPrevious, err := a.bookmarks.Get(ctx)
	if err != nil {
		return out, err
	}

	lower := params.Start
	if lower.IsZero() {
		if hasPrevious {
			lower = previous
		} else {
			oldest, ok, err := a.oldestEventTime(ctx, alias)
			if err != nil {
				return out, err
			}
			if !ok {
				return out, nil
			}
			lower = oldest
		}
	}

	now := a.now().UTC().Truncate(time.Second)
	upper := now
	if !params.End.IsZero() && params.End.Before(now) {
		upper = params.End.UTC()
	}

	for _, dt := range a.steps(lower, upper) {
		written, err := a.aggregateStep(ctx, alias, dt, previous, hasPrevious)
		if err != nil {
			return out, err
		}
		out.Written += written
		out.Steps++
	}

	if params.UpdateBookmark {
		if err := a.bookmarks.Set(ctx, upper); err != nil {
			return out, err
		}
	}

	a.logger.Info().
		Time("lower", lower).
		Time("upper", upper).
		Int("steps", out.Steps).
		Int("written", out.Written).
		Msg("Aggregation run complete")
	return out, nil
}

// steps lists the interval anchors covering [lower, upper), including
// the trailing partial interval. The first anchor keeps the raw lower
// bound; the engine-side rounding selects its whole interval anyway.
func (a *Aggregator) steps(lower, upper time.Time) []time.Time {
	var out []time.Time
	for dt := lower.UTC(); dt.Before(upper); dt = a.interval.Next(dt) {
		out = append(out, dt)
	}
	return out
}

// aggregateStep rolls up one interval. It returns how many documents
// the engine accepted; any engine error aborts the step.
func (a *Aggregator) aggregateStep(ctx context.Context, alias string, dt time.Time, previous time.Time, hasPrevious bool) (int, error) {
	total, err := a.keyCardinality(ctx, alias, dt)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	numPartitions := (total + a.maxBucketSize - 1) / a.maxBucketSize

	intervalStart := a.interval.Floor(dt)
	indexName := a.namer.AggIndex(a.eventType, intervalStart.Format(a.indexInterval.Layout()))

	var actions []search.BulkAction
	for p := 0; p < numPartitions; p++ {
		// Cache bypass: the partition clause changes between otherwise
		// identical requests, and a cached response would repeat one
		// partition's buckets for another.
		res, err := a.engine.Search(ctx, alias, a.partitionQuery(dt, p, numPartitions), search.WithoutRequestCache())
		if err != nil {
			return 0, fmt.Errorf("aggregate %s partition %d/%d: %w", intervalStart.Format(a.interval.Layout()), p, numPartitions, err)
		}
		for _, bucket := range res.Buckets("terms") {
			doc, id, keep := a.rollupDoc(bucket, intervalStart, previous, hasPrevious)
			if !keep {
				continue
			}
			actions = append(actions, search.BulkAction{
				OpType: search.BulkOpIndex,
				Index:  indexName,
				DocID:  id,
				Doc:    doc,
			})
		}
	}

	if len(actions) == 0 {
		return 0, nil
	}

	result, err := a.engine.Bulk(ctx, actions)
	if err != nil {
		return result.Succeeded, fmt.Errorf("write rollups for %s: %w", intervalStart.Format(a.interval.Layout()), err)
	}
	if result.Failed > 0 {
		return result.Succeeded, fmt.Errorf("write rollups for %s: %w", intervalStart.Format(a.interval.Layout()), result.Errors[0])
	}
	return result.Succeeded, nil
}

// stepQuery builds the filtered, hitless base query selecting the raw
// events of the interval containing dt, with all modifiers applied.
func (a *Aggregator) stepQuery(dt time.Time) map[string]any {
	expr := a.interval.RangeExpr(dt)
	query := map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"range": map[string]any{"timestamp": map[string]any{"gte": expr, "lte": expr}}},
				},
			},
		},
	}
	for _, modify := range a.modifiers {
		query = modify(query)
	}
	return query
}

// keyCardinality estimates how many distinct key values the interval
// holds, which decides the partition count.
func (a *Aggregator) keyCardinality(ctx context.Context, alias string, dt time.Time) (int, error) {
	body := a.stepQuery(dt)
	body["aggs"] = map[string]any{
		"total_count": map[string]any{
			"cardinality": map[string]any{
				"field":               a.field,
				"precision_threshold": cardinalityPrecision,
			},
		},
	}

	res, err := a.engine.Search(ctx, alias, body)
	if err != nil {
		return 0, fmt.Errorf("count %s keys: %w", a.field, err)
	}
	total, ok := search.NestedFloat(res, "aggregations", "total_count", "value")
	if !ok {
		return 0, nil
	}
	return int(total), nil
}

// partitionQuery builds the terms aggregation for one partition of the
// key space, with the representative top hit, the incremental-skip
// watermark and the configured metrics as sub-aggregations.
func (a *Aggregator) partitionQuery(dt time.Time, partition, numPartitions int) map[string]any {
	subAggs := map[string]any{
		"top_hit": map[string]any{
			"top_hits": map[string]any{
				"size": 1,
				"sort": []any{map[string]any{"timestamp": map[string]any{"order": "desc"}}},
			},
		},
		"last_update": map[string]any{
			"max": map[string]any{"field": "updated_timestamp"},
		},
	}
	for dst, mf := range a.metricFields {
		metric := map[string]any{"field": mf.Field}
		for k, v := range mf.Options {
			metric[k] = v
		}
		subAggs[dst] = map[string]any{mf.Type: metric}
	}

	body := a.stepQuery(dt)
	body["aggs"] = map[string]any{
		"terms": map[string]any{
			"terms": map[string]any{
				"field":   a.field,
				"include": map[string]any{"partition": partition, "num_partitions": numPartitions},
				"size":    a.maxBucketSize,
			},
			"aggs": subAggs,
		},
	}
	return body
}

// rollupDoc assembles the rollup document for one terms bucket. A false
// return means the bucket saw no new events since the previous bookmark
// and its existing rollup is already current.
func (a *Aggregator) rollupDoc(bucket map[string]any, intervalStart time.Time, previous time.Time, hasPrevious bool) (map[string]any, string, bool) {
	if hasPrevious {
		var lastUpdate int64
		if v, ok := search.NestedFloat(bucket, "last_update", "value"); ok {
			lastUpdate = int64(v)
		}
		if lastUpdate < previous.UnixMilli() {
			return nil, "", false
		}
	}

	key := bucket["key"]
	count, _ := search.NestedFloat(bucket, "doc_count")

	doc := map[string]any{
		"timestamp": intervalStart.Format(timestampLayout),
		a.field:     key,
		"count":     int(count),
	}
	for _, dst := range sortedKeys(a.metricFields) {
		doc[dst] = search.MetricValue(bucket[dst])
	}

	topHit := search.TopHitSource(bucket)
	for _, dst := range sortedKeys(a.copyFields) {
		cf := a.copyFields[dst]
		switch {
		case cf.Fn != nil:
			doc[dst] = cf.Fn(topHit, doc)
		case cf.Source != "":
			if v, ok := topHit[cf.Source]; ok {
				doc[dst] = v
			}
		}
	}
	doc["updated_timestamp"] = a.now().UTC().Format(updatedLayout)

	id := fmt.Sprint(key) + "-" + intervalStart.Format(a.interval.Layout())
	return doc, id, true
}

// oldestEventTime finds the first indexed event, which seeds the range
// of a bookmark-less first run.
func (a *Aggregator) oldestEventTime(ctx context.Context, alias string) (time.Time, bool, error) {
	res, err := a.engine.Search(ctx, alias, map[string]any{
		"size": 1,
		"sort": []any{map[string]any{"timestamp": map[string]any{"order": "asc"}}},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("find oldest event: %w", err)
	}

	sources := res.Sources()
	if len(sources) == 0 {
		return time.Time{}, false, nil
	}
	raw, _ := sources[0]["timestamp"].(string)
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse oldest event timestamp %q: %w", raw, err)
	}
	return ts, true, nil
}

// Delete removes rollup documents in the given range along with the
// aggregation's bookmarks in it, so the next run rebuilds the range
// from raw events. It returns how many documents were removed.
func (a *Aggregator) Delete(ctx context.Context, start, end time.Time) (int, error) {
	query := map[string]any{"match_all": map[string]any{}}
	bounds := map[string]any{}
	if !start.IsZero() {
		bounds["gte"] = a.interval.RangeExpr(start)
	}
	if !end.IsZero() {
		bounds["lte"] = a.interval.RangeExpr(end)
	}
	if len(bounds) > 0 {
		query = map[string]any{"range": map[string]any{"timestamp": bounds}}
	}

	deleted, err := deleteByQuery(ctx, a.engine, a.namer.AggAlias(a.eventType), query, a.maxBucketSize)
	if err != nil {
		return deleted, fmt.Errorf("delete rollups: %w", err)
	}

	bookmarksDeleted, err := a.bookmarks.Delete(ctx, start, end)
	if err != nil {
		return deleted + bookmarksDeleted, fmt.Errorf("delete bookmarks: %w", err)
	}

	a.logger.Info().
		Int("rollups", deleted).
		Int("bookmarks", bookmarksDeleted).
		Msg("Deleted aggregated documents")
	return deleted + bookmarksDeleted, nil
}

// deleteByQuery removes every document matching query, page by page.
// Affected indices are flushed between passes so each search observes
// the prior deletions.
func deleteByQuery(ctx context.Context, engine search.Engine, index string, query map[string]any, pageSize int) (int, error) {
	deleted := 0
	for {
		res, err := engine.Search(ctx, index, map[string]any{
			"size":    pageSize,
			"_source": false,
			"query":   query,
		}, search.WithIgnoreUnavailable())
		if err != nil {
			return deleted, fmt.Errorf("find documents to delete: %w", err)
		}
		hits := res.Hits()
		if len(hits) == 0 {
			return deleted, nil
		}

		actions := make([]search.BulkAction, 0, len(hits))
		affected := make(map[string]struct{})
		for _, hit := range hits {
			id, _ := hit["_id"].(string)
			idx, _ := hit["_index"].(string)
			if id == "" || idx == "" {
				continue
			}
			actions = append(actions, search.BulkAction{OpType: search.BulkOpDelete, Index: idx, DocID: id})
			affected[idx] = struct{}{}
		}

		result, err := engine.Bulk(ctx, actions)
		deleted += result.Succeeded
		if err != nil {
			return deleted, fmt.Errorf("delete documents: %w", err)
		}
		if result.Succeeded == 0 {
			return deleted, fmt.Errorf("delete documents: no progress on %d matches", len(hits))
		}
		for idx := range affected {
			if err := engine.Flush(ctx, idx); err != nil {
				return deleted, err
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
