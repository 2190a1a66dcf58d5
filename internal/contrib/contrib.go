// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package contrib bundles the registrations Statflow ships with: the
// file-download and record-view event streams, their daily rollups and
// the statistics queries over them. Deployments call Register once at
// startup and layer their own event types on top; the config layer can
// then narrow the enabled subset per registry kind.
package contrib

import (
	"github.com/statflow/statflow/internal/processor"
	"github.com/statflow/statflow/internal/stats"
)

// Built-in registry names. Event type names double as queue subjects
// and index infixes, so they are referenced from config and CLI too.
const (
	EventFileDownload = "file-download"
	EventRecordView   = "record-view"

	AggFileDownload = "file-download-agg"
	AggRecordView   = "record-view-agg"

	QueryFileDownloadHistogram = "bucket-file-download-histogram"
	QueryFileDownloadTotal     = "bucket-file-download-total"
	QueryRecordViewHistogram   = "record-view-histogram"
	QueryRecordViewTotal       = "record-view-total"
)

// Options carries the shared processor dependencies the built-in event
// streams need. Robots and Machines must be set; Geo may be nil when no
// country table is configured.
type Options struct {
	Robots   *processor.AgentMatcher
	Machines *processor.AgentMatcher
	Salts    processor.SaltSource
	Geo      processor.CountryResolver
}

// Register adds every built-in event type, aggregation and query to the
// registry. It fails on the first duplicate, so deployments that
// override a built-in name must register theirs first.
func Register(reg *stats.Registry, opts Options) error {
	for _, et := range EventTypes(opts) {
		if err := reg.RegisterEventType(et); err != nil {
			return err
		}
	}
	for _, cfg := range Aggregations() {
		if err := reg.RegisterAggregation(cfg); err != nil {
			return err
		}
	}
	for _, cfg := range Queries() {
		if err := reg.RegisterQuery(cfg); err != nil {
			return err
		}
	}
	return nil
}

// EventTypes returns the built-in event stream definitions. Both
// streams flag robot and machine traffic, anonymize the visitor and
// derive the unique_id their rollups group by. The builders stamp
// request-derived fields onto payloads accepted by the HTTP receiver.
func EventTypes(opts Options) []stats.EventType {
	anonymize := processor.NewAnonymizer(opts.Salts, opts.Geo)

	return []stats.EventType{
		{
			Name:         EventFileDownload,
			TemplateName: "events-stats-file-download",
			Builders: []stats.EventBuilder{
				FileDownloadBuilder(),
				CaptureRequest(),
			},
			Processors: []stats.Processor{
				processor.FlagRobots(opts.Robots),
				processor.FlagMachines(opts.Machines),
				anonymize,
				processor.BuildFileUniqueID(),
			},
		},
		{
			Name:         EventRecordView,
			TemplateName: "events-stats-record-view",
			Builders: []stats.EventBuilder{
				RecordViewBuilder(),
				CaptureRequest(),
			},
			Processors: []stats.Processor{
				processor.FlagRobots(opts.Robots),
				processor.FlagMachines(opts.Machines),
				anonymize,
				processor.BuildRecordUniqueID(),
			},
		},
	}
}

// Aggregations returns the built-in daily rollups. Each groups events
// by unique_id, counts distinct anonymized sessions per bucket, and
// carries the identifying fields of a sampled event into the rollup
// document. Download rollups additionally sum transferred bytes.
func Aggregations() []stats.AggregationConfig {
	return []stats.AggregationConfig{
		{
			Name:                AggFileDownload,
			EventType:           EventFileDownload,
			TemplateName:        "stats-file-download",
			AggregationField:    "unique_id",
			AggregationInterval: "day",
			MetricFields: map[string]stats.MetricField{
				"unique_count": {
					Type:    "cardinality",
					Field:   "unique_session_id",
					Options: map[string]any{"precision_threshold": 1000},
				},
				"volume": {Type: "sum", Field: "size"},
			},
			CopyFields: map[string]stats.CopyField{
				"file_key":  {Source: "file_key"},
				"bucket_id": {Source: "bucket_id"},
				"file_id":   {Source: "file_id"},
			},
		},
		{
			Name:                AggRecordView,
			EventType:           EventRecordView,
			TemplateName:        "stats-record-view",
			AggregationField:    "unique_id",
			AggregationInterval: "day",
			MetricFields: map[string]stats.MetricField{
				"unique_count": {
					Type:    "cardinality",
					Field:   "unique_session_id",
					Options: map[string]any{"precision_threshold": 1000},
				},
			},
			CopyFields: map[string]stats.CopyField{
				"record_id": {Source: "record_id"},
				"pid_type":  {Source: "pid_type"},
				"pid_value": {Source: "pid_value"},
			},
		},
	}
}

// Queries returns the built-in statistics queries. The histogram pair
// plots one object's daily activity; the totals pair sums activity per
// object key under a coarser filter.
func Queries() []stats.QueryConfig {
	return []stats.QueryConfig{
		{
			Name:  QueryFileDownloadHistogram,
			Kind:  stats.QueryKindHistogram,
			Index: "stats-file-download",
			RequiredFilters: map[string]string{
				"bucket_id": "bucket_id",
				"file_key":  "file_key",
			},
			CopyFields: map[string]stats.QueryCopyField{
				"bucket_id": {Source: "bucket_id"},
				"file_key":  {Source: "file_key"},
			},
		},
		{
			Name:  QueryFileDownloadTotal,
			Kind:  stats.QueryKindTerms,
			Index: "stats-file-download",
			RequiredFilters: map[string]string{
				"bucket_id": "bucket_id",
			},
			AggregatedFields: []string{"file_key"},
		},
		{
			Name:  QueryRecordViewHistogram,
			Kind:  stats.QueryKindHistogram,
			Index: "stats-record-view",
			RequiredFilters: map[string]string{
				"pid_type":  "pid_type",
				"pid_value": "pid_value",
			},
			CopyFields: map[string]stats.QueryCopyField{
				"record_id": {Source: "record_id"},
				"pid_type":  {Source: "pid_type"},
				"pid_value": {Source: "pid_value"},
			},
		},
		{
			Name:  QueryRecordViewTotal,
			Kind:  stats.QueryKindTerms,
			Index: "stats-record-view",
			RequiredFilters: map[string]string{
				"pid_type": "pid_type",
			},
			AggregatedFields: []string{"pid_value"},
		},
	}
}
