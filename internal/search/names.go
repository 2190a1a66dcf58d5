// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

const (
	eventIndexBase    = "events-stats"
	aggIndexBase      = "stats"
	bookmarkIndexName = "stats-bookmarks"

	// prefixPlaceholder is replaced in embedded template bodies with the
	// configured prefix (plus separator) before installation.
	prefixPlaceholder = "__INDEX_PREFIX__"
)

// Namer builds the index and alias names used by the pipeline. A
// non-empty Prefix is prepended to every name so multiple deployments
// can share a cluster without colliding.
type Namer struct {
	Prefix string
}

// EventAlias returns the read alias covering all raw event indices of
// one event type, e.g. events-stats-file-download.
func (n Namer) EventAlias(eventType string) string {
	return n.apply(eventIndexBase + "-" + eventType)
}

// EventIndex returns the dated index holding raw events for one slice
// of time, e.g. events-stats-file-download-2026-08-24. The suffix is
// the event timestamp rendered in the event type's suffix layout.
func (n Namer) EventIndex(eventType, suffix string) string {
	return n.EventAlias(eventType) + "-" + suffix
}

// AggAlias returns the read alias covering all aggregation indices of
// one event type, e.g. stats-file-download.
func (n Namer) AggAlias(eventType string) string {
	return n.apply(aggIndexBase + "-" + eventType)
}

// AggIndex returns the dated index holding aggregated documents, e.g.
// stats-file-download-2026-08. The suffix is the bucket date rendered
// in the aggregation's index interval layout.
func (n Namer) AggIndex(eventType, suffix string) string {
	return n.AggAlias(eventType) + "-" + suffix
}

// BookmarkIndex returns the index tracking aggregation progress.
func (n Namer) BookmarkIndex() string {
	return n.apply(bookmarkIndexName)
}

// Index applies the configured prefix to an index or alias name taken
// from query configuration.
func (n Namer) Index(name string) string {
	return n.apply(name)
}

// TemplatePrefix returns the string substituted for the prefix
// placeholder in template bodies: "{prefix}-" or "" without a prefix.
func (n Namer) TemplatePrefix() string {
	if n.Prefix == "" {
		return ""
	}
	return n.Prefix + "-"
}

func (n Namer) apply(name string) string {
	return n.TemplatePrefix() + name
}
