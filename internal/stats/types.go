// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package stats holds the registry of event types, aggregations and queries
// that make up a Statflow deployment, together with the configuration types
// the rest of the pipeline is built from.
//
// The registry is populated once at startup (the built-in registrations live
// in internal/contrib) and read concurrently afterwards. Every subsystem
// derives its workers from registry entries: durable queues and indexers from
// event types, rollup runners from aggregations, and API executors from
// queries.
package stats

import (
	"context"
	"net/http"
	"time"
)

// Processor transforms a raw event document before it is indexed. Processors
// are chained; each receives the previous result. Returning (nil, nil) drops
// the event and stops the chain.
type Processor interface {
	Process(ctx context.Context, event map[string]any) (map[string]any, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, event map[string]any) (map[string]any, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, event map[string]any) (map[string]any, error) {
	return f(ctx, event)
}

// EventBuilder enriches a submitted payload with request-derived fields
// before it is published to the bus. Builders run in order; each receives the
// previous result.
type EventBuilder func(ctx context.Context, r *http.Request, event map[string]any) (map[string]any, error)

// EventType describes a registered usage event stream.
type EventType struct {
	// Name identifies the stream ("file-download", "record-view"). It is
	// embedded in queue, index, alias and template names.
	Name string

	// TemplateName keys the index template bundle that must exist before
	// events of this type are indexed.
	TemplateName string

	// Builders enrich payloads accepted by the HTTP receiver.
	Builders []EventBuilder

	// Processors form the preprocessor chain applied before indexing.
	Processors []Processor

	// SuffixFormat is the time layout appended to the raw index name.
	// Empty means daily indices ("2006-01-02").
	SuffixFormat string

	// DoubleClickWindow collapses repeated identical events into one
	// document. Zero keeps the default; a negative value disables
	// windowing entirely.
	DoubleClickWindow time.Duration
}

// CopyFieldFunc computes a rollup field from the sampled source event and the
// rollup document assembled so far.
type CopyFieldFunc func(event, aggregation map[string]any) any

// CopyField names either a field copied verbatim from the sampled source
// event (Source) or a computed value (Fn). When both are set, Fn wins.
type CopyField struct {
	Source string
	Fn     CopyFieldFunc
}

// MetricField declares a metric sub-aggregation evaluated per rollup bucket.
type MetricField struct {
	// Type is the search engine aggregation name: avg, cardinality,
	// extended_stats, geo_centroid, max, min, percentiles, stats or sum.
	Type string

	// Field is the document field the metric operates on.
	Field string

	// Options are merged into the aggregation body (e.g. precision_threshold).
	Options map[string]any
}

// ValidMetricType reports whether t names a supported metric
// sub-aggregation.
func ValidMetricType(t string) bool {
	switch t {
	case "avg", "cardinality", "extended_stats", "geo_centroid",
		"max", "min", "percentiles", "stats", "sum":
		return true
	}
	return false
}

// QueryModifier rewrites the range query body used to select source events
// for one aggregation step. The returned map replaces the passed one.
type QueryModifier func(query map[string]any) map[string]any

// AggregationConfig describes a registered incremental rollup.
type AggregationConfig struct {
	// Name identifies the aggregation ("file-download-agg").
	Name string

	// EventType is the raw event stream the aggregation reads.
	EventType string

	// TemplateName keys the rollup index template bundle.
	TemplateName string

	// AggregationField is the keyword field whose distinct values key the
	// rollup documents.
	AggregationField string

	// AggregationInterval is the bucketing interval: hour, day or month.
	// It must not exceed IndexInterval.
	AggregationInterval string

	// IndexInterval determines rollup index granularity: hour, day or
	// month. Rollup index names carry a suffix in this interval's format.
	IndexInterval string

	// MetricFields declares metric sub-aggregations keyed by the rollup
	// document field that receives the value.
	MetricFields map[string]MetricField

	// CopyFields carries fields from a sampled source event into each
	// rollup document, keyed by destination field.
	CopyFields map[string]CopyField

	// QueryModifiers rewrite the event selection query. When nil, a
	// default robot filter (term is_robot=false) is applied.
	QueryModifiers []QueryModifier
}

// Permission decides whether the caller in ctx may run the named query with
// the given parameters. A nil error allows the query.
type Permission func(ctx context.Context, query string, params map[string]any) error

// QueryKind selects the result shape of a registered query.
type QueryKind string

const (
	// QueryKindHistogram buckets rollup documents over a date histogram.
	QueryKindHistogram QueryKind = "histogram"

	// QueryKindTerms groups rollup documents by field values.
	QueryKindTerms QueryKind = "terms"
)

// QueryConfig describes a registered statistics query over rollup indices.
type QueryConfig struct {
	// Name identifies the query ("record-view-histogram").
	Name string

	// Kind selects the executor: histogram or terms.
	Kind QueryKind

	// Index is the rollup alias the query searches (without prefix).
	Index string

	// TimeField is the date field histograms bucket on. Empty means
	// "timestamp".
	TimeField string

	// Interval is the default histogram interval: day, week, month,
	// quarter or year.
	Interval string

	// RequiredFilters maps caller parameter names to document fields.
	// Every listed parameter must be supplied and is applied as a term
	// filter.
	RequiredFilters map[string]string

	// AggregatedFields are grouped over, in order, by terms queries.
	AggregatedFields []string

	// MetricFields declares metric sub-aggregations evaluated per bucket,
	// keyed by result field.
	MetricFields map[string]MetricField

	// CopyFields copies fields from the top hit of each bucket into the
	// bucket result, keyed by destination field. For computed fields the
	// function receives the bucket assembled so far and the top hit.
	CopyFields map[string]QueryCopyField

	// Permission overrides the global permission factory for this query.
	Permission Permission
}

// QueryCopyFieldFunc computes a bucket field from the bucket assembled so far
// and the top hit document of that bucket.
type QueryCopyFieldFunc func(bucket, topHit map[string]any) any

// QueryCopyField names either a field copied from the bucket's top hit
// (Source) or a computed value (Fn). When both are set, Fn wins.
type QueryCopyField struct {
	Source string
	Fn     QueryCopyFieldFunc
}
