// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package indexer drains queued usage events and writes them to dated
// raw event indices.
//
// Every event runs through its type's preprocessor chain, gets a
// deterministic document id derived from the double-click window and
// the visitor hash, and is bulk-indexed. Replayed or duplicated queue
// messages therefore overwrite the same document instead of inflating
// counts, which is what lets the bus ack messages before indexing.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/metrics"
	"github.com/statflow/statflow/internal/processor"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

const (
	// timestampLayout is the canonical second-precision form events are
	// stored with. Document ids embed it, so it must never change.
	timestampLayout = "2006-01-02T15:04:05"

	// updatedLayout keeps the microseconds of the ingest time. The
	// aggregator's incremental skip compares max(updated_timestamp)
	// against bookmarks, where second resolution would be too coarse
	// for back-to-back runs.
	updatedLayout = "2006-01-02T15:04:05.000000"

	// defaultSuffixLayout names daily raw indices.
	defaultSuffixLayout = "2006-01-02"
)

// Queue hands over everything currently enqueued for an event type.
// Satisfied by the event bus consumer.
type Queue interface {
	Drain(ctx context.Context, eventType string, handler func(event map[string]any)) (int, error)
}

// Indexer moves one event type's queued events into the search engine.
type Indexer struct {
	queue        Queue
	engine       search.Engine
	namer        search.Namer
	chain        *processor.Chain
	eventType    string
	suffixLayout string
	window       time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// New builds the indexer for one registered event type. window is the
// deployment-wide double-click window; the event type may override it
// or, with a negative value, disable windowing for its events.
func New(queue Queue, engine search.Engine, namer search.Namer, def stats.EventType, window time.Duration, logger zerolog.Logger) (*Indexer, error) {
	if queue == nil {
		return nil, errors.New("indexer: queue is required")
	}
	if engine == nil {
		return nil, errors.New("indexer: engine is required")
	}
	if def.Name == "" {
		return nil, errors.New("indexer: event type has no name")
	}

	suffixLayout := def.SuffixFormat
	if suffixLayout == "" {
		suffixLayout = defaultSuffixLayout
	}

	return &Indexer{
		queue:        queue,
		engine:       engine,
		namer:        namer,
		chain:        processor.NewChain(def.Processors...),
		eventType:    def.Name,
		suffixLayout: suffixLayout,
		window:       resolveWindow(def.DoubleClickWindow, window),
		logger:       logger.With().Str("event_type", def.Name).Logger(),
		now:          time.Now,
	}, nil
}

// resolveWindow picks the effective double-click window: the event
// type's own when set, the deployment default otherwise. A negative
// per-type value disables windowing.
func resolveWindow(typeWindow, fallback time.Duration) time.Duration {
	switch {
	case typeWindow < 0:
		return 0
	case typeWindow > 0:
		return typeWindow
	default:
		return fallback
	}
}

// EventType returns the event stream this indexer drains.
func (ix *Indexer) EventType() string { return ix.eventType }

// Run drains the queue once and indexes what it yields. It returns how
// many documents the engine accepted and how many events failed, in
// preprocessing or as rejected bulk items. Failures are isolated per
// event; only transport errors abort the run. The indexer keeps no
// checkpoint of its own, the queue is the source of truth for what has
// been processed.
func (ix *Indexer) Run(ctx context.Context) (int, int, error) {
	start := ix.now()

	var (
		actions []search.BulkAction
		failed  int
		dropped int
	)
	drained, drainErr := ix.queue.Drain(ctx, ix.eventType, func(event map[string]any) {
		action, ok, err := ix.action(ctx, event)
		if err != nil {
			failed++
			ix.logger.Error().Err(err).Interface("event", event).Msg("Error while processing event")
			return
		}
		if !ok {
			dropped++
			return
		}
		actions = append(actions, action)
	})

	// Drained messages are already acked, so whatever was collected is
	// flushed even when the drain itself failed part way through.
	result, bulkErr := ix.engine.Bulk(ctx, actions)
	failed += result.Failed
	for _, itemErr := range result.Errors {
		ix.logger.Error().
			Str("index", itemErr.Index).
			Str("doc_id", itemErr.DocID).
			Int("status", itemErr.Status).
			Str("reason", itemErr.Reason).
			Msg("Bulk item rejected")
	}
	if result.Failed > 0 {
		metrics.IndexerBulkErrors.WithLabelValues(ix.eventType).Add(float64(result.Failed))
	}
	if drained > 0 {
		metrics.RecordIndexerFlush(ix.eventType, result.Succeeded, dropped, ix.now().Sub(start))
	}

	if drainErr != nil {
		return result.Succeeded, failed, fmt.Errorf("drain %s: %w", ix.eventType, drainErr)
	}
	if bulkErr != nil {
		return result.Succeeded, failed, fmt.Errorf("bulk index %s: %w", ix.eventType, bulkErr)
	}

	if drained > 0 {
		ix.logger.Info().
			Int("drained", drained).
			Int("indexed", result.Succeeded).
			Int("dropped", dropped).
			Int("failed", failed).
			Msg("Indexed queued events")
	}
	return result.Succeeded, failed, nil
}

// action turns one drained event into a bulk index action. A false
// return with nil error means the chain dropped the event.
func (ix *Indexer) action(ctx context.Context, event map[string]any) (search.BulkAction, bool, error) {
	enriched, err := ix.chain.Run(ctx, event)
	if err != nil {
		return search.BulkAction{}, false, err
	}
	if enriched == nil {
		return search.BulkAction{}, false, nil
	}

	ts, err := processor.EventTime(enriched)
	if err != nil {
		return search.BulkAction{}, false, err
	}
	ts = ts.Truncate(time.Second)
	enriched["timestamp"] = ts.Format(timestampLayout)
	enriched["updated_timestamp"] = ix.now().UTC().Format(updatedLayout)

	docID, err := ix.docID(ts, enriched)
	if err != nil {
		return search.BulkAction{}, false, err
	}

	return search.BulkAction{
		OpType: search.BulkOpIndex,
		Index:  ix.namer.EventIndex(ix.eventType, ts.Format(ix.suffixLayout)),
		DocID:  docID,
		Doc:    enriched,
	}, true, nil
}

// docID derives the deterministic document id: the event timestamp
// floored to the double-click window, then a SHA-1 over unique_id and
// visitor_id. Repeated events inside one window share the id and
// collapse to a single document.
func (ix *Indexer) docID(ts time.Time, event map[string]any) (string, error) {
	uniqueID, ok := event["unique_id"].(string)
	if !ok || uniqueID == "" {
		return "", errors.New("event has no unique_id")
	}

	windowed := ts
	if w := int64(ix.window / time.Second); w > 0 {
		windowed = time.Unix(ts.Unix()/w*w, 0).UTC()
	}

	sum := sha1.Sum([]byte(uniqueID + fmt.Sprint(event["visitor_id"])))
	return windowed.Format(timestampLayout) + "-" + hex.EncodeToString(sum[:]), nil
}
