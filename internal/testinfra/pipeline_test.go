// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

//go:build integration

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/aggregator"
	"github.com/statflow/statflow/internal/contrib"
	"github.com/statflow/statflow/internal/eventbus"
	"github.com/statflow/statflow/internal/indexer"
	"github.com/statflow/statflow/internal/processor"
	"github.com/statflow/statflow/internal/query"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

const (
	pipelinePID   = "10.1234/statflow.42"
	uaFirefox     = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	uaChrome      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0.0.0 Safari/537.36"
	pipelineDay   = "2026-08-20"
	pipelineMonth = "2026-08"
)

// TestPipelineEndToEnd drives a batch of record views through the whole
// pipeline against real backends: publish to the bus, drain and index,
// roll up into daily buckets, then read the counts back through the
// query executors. A second aggregation run immediately after must be
// skipped by the bookmark.
func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test, skipped in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := zerolog.Nop()

	cluster, err := NewSearchCluster(ctx)
	if err != nil {
		t.Fatalf("start search cluster: %v", err)
	}
	defer CleanupContainer(t, ctx, cluster.Container)

	engine, err := search.NewESEngine(cluster.Config())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if err := engine.Ping(ctx); err != nil {
		t.Fatalf("ping cluster: %v\n%s", err, ContainerLogs(ctx, cluster.Container))
	}

	busCfg := StartBus(t)
	conn, js, err := eventbus.Connect(busCfg, logger)
	if err != nil {
		t.Fatalf("connect to bus: %v", err)
	}
	defer conn.Close()

	manager, err := eventbus.NewStreamManager(js, busCfg)
	if err != nil {
		t.Fatalf("create stream manager: %v", err)
	}
	if _, err := manager.EnsureStream(ctx); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	if err := manager.EnsureConsumer(ctx, contrib.EventRecordView); err != nil {
		t.Fatalf("ensure consumer: %v", err)
	}

	robots, err := processor.NewAgentMatcher(processor.DefaultRobotPatterns())
	if err != nil {
		t.Fatalf("robot patterns: %v", err)
	}
	machines, err := processor.NewAgentMatcher(processor.DefaultMachinePatterns())
	if err != nil {
		t.Fatalf("machine patterns: %v", err)
	}

	reg := stats.NewRegistry()
	err = contrib.Register(reg, contrib.Options{
		Robots:   robots,
		Machines: machines,
		Salts:    processor.NewDerivedSaltSource("pipeline-test-secret"),
	})
	if err != nil {
		t.Fatalf("register built-ins: %v", err)
	}

	namer := search.Namer{Prefix: "e2e"}
	templates, err := search.NewTemplateManager(engine, namer)
	if err != nil {
		t.Fatalf("create template manager: %v", err)
	}
	if err := templates.PutAll(ctx); err != nil {
		t.Fatalf("install templates: %v", err)
	}

	// Three views of one record on the same day: two from the same
	// visitor minutes apart, one from a second visitor.
	publisher, err := eventbus.NewPublisher(busCfg, logger)
	if err != nil {
		t.Fatalf("create publisher: %v", err)
	}
	defer publisher.Close()

	views := []map[string]any{
		recordView("2026-08-20T10:00:00Z", "203.0.113.7", uaFirefox),
		recordView("2026-08-20T10:05:00Z", "203.0.113.7", uaFirefox),
		recordView("2026-08-20T10:02:00Z", "198.51.100.23", uaChrome),
	}
	if err := publisher.Publish(ctx, contrib.EventRecordView, views); err != nil {
		t.Fatalf("publish events: %v", err)
	}

	// Drain and index.
	consumer, err := eventbus.NewConsumer(js, busCfg, logger)
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	def, err := reg.EventType(contrib.EventRecordView)
	if err != nil {
		t.Fatalf("event type: %v", err)
	}
	ix, err := indexer.New(consumer, engine, namer, def, 10*time.Second, logger)
	if err != nil {
		t.Fatalf("create indexer: %v", err)
	}
	indexed, failedEvents, err := ix.Run(ctx)
	if err != nil {
		t.Fatalf("index events: %v", err)
	}
	if indexed != len(views) || failedEvents != 0 {
		t.Fatalf("indexed %d events with %d failures, want %d and 0", indexed, failedEvents, len(views))
	}
	if err := engine.Flush(ctx, namer.EventIndex(contrib.EventRecordView, pipelineDay)); err != nil {
		t.Fatalf("flush event index: %v", err)
	}

	// Roll up.
	aggCfg, err := reg.Aggregation(contrib.AggRecordView)
	if err != nil {
		t.Fatalf("aggregation config: %v", err)
	}
	agg, err := aggregator.New(engine, namer, aggCfg, 10000, 0, logger)
	if err != nil {
		t.Fatalf("create aggregator: %v", err)
	}
	first, err := agg.Run(ctx, aggregator.RunParams{UpdateBookmark: true})
	if err != nil {
		t.Fatalf("aggregation run: %v", err)
	}
	if first.Written < 1 {
		t.Fatalf("first run wrote %d rollups, want at least 1", first.Written)
	}
	if err := engine.Flush(ctx, namer.AggIndex(contrib.EventRecordView, pipelineMonth)); err != nil {
		t.Fatalf("flush rollup index: %v", err)
	}
	if err := engine.Flush(ctx, namer.BookmarkIndex()); err != nil {
		t.Fatalf("flush bookmark index: %v", err)
	}

	// Nothing changed, so the bookmark skips the second run.
	second, err := agg.Run(ctx, aggregator.RunParams{UpdateBookmark: true})
	if err != nil {
		t.Fatalf("second aggregation run: %v", err)
	}
	if second.Written != 0 {
		t.Errorf("second run wrote %d rollups, want 0 via the bookmark", second.Written)
	}

	// Read the counts back.
	t.Run("histogram", func(t *testing.T) {
		histCfg, err := reg.Query(contrib.QueryRecordViewHistogram)
		if err != nil {
			t.Fatalf("query config: %v", err)
		}
		exec, err := query.New(engine, namer, histCfg, 10000, logger)
		if err != nil {
			t.Fatalf("create executor: %v", err)
		}

		res, err := exec.Run(ctx, map[string]any{
			"pid_type":  "doi",
			"pid_value": pipelinePID,
		})
		if err != nil {
			t.Fatalf("run histogram query: %v", err)
		}

		if got := sumBucketValues(t, res); got != float64(len(views)) {
			t.Errorf("histogram sums to %v views, want %d", got, len(views))
		}
	})

	t.Run("terms total", func(t *testing.T) {
		totalCfg, err := reg.Query(contrib.QueryRecordViewTotal)
		if err != nil {
			t.Fatalf("query config: %v", err)
		}
		exec, err := query.New(engine, namer, totalCfg, 10000, logger)
		if err != nil {
			t.Fatalf("create executor: %v", err)
		}

		res, err := exec.Run(ctx, map[string]any{"pid_type": "doi"})
		if err != nil {
			t.Fatalf("run terms query: %v", err)
		}

		buckets, _ := res["buckets"].([]any)
		if len(buckets) != 1 {
			t.Fatalf("terms query returned %d buckets, want 1: %v", len(buckets), res)
		}
		bucket, _ := buckets[0].(map[string]any)
		if bucket["key"] != pipelinePID {
			t.Errorf("bucket key = %v, want %s", bucket["key"], pipelinePID)
		}
		if got, _ := bucket["value"].(float64); got != float64(len(views)) {
			t.Errorf("bucket value = %v, want %d", bucket["value"], len(views))
		}
	})
}

// recordView builds the payload the HTTP receiver would put on the bus
// after the record-view builders ran.
func recordView(timestamp, ip, userAgent string) map[string]any {
	return map[string]any{
		"record_id":  "rec-42",
		"pid_type":   "doi",
		"pid_value":  pipelinePID,
		"timestamp":  timestamp,
		"ip_address": ip,
		"user_agent": userAgent,
	}
}

// sumBucketValues adds up the default sum-of-count metric across the
// histogram buckets.
func sumBucketValues(t *testing.T, res map[string]any) float64 {
	t.Helper()

	buckets, ok := res["buckets"].([]any)
	if !ok {
		t.Fatalf("result has no buckets: %v", res)
	}
	var total float64
	for _, b := range buckets {
		bucket, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := bucket["value"].(float64); ok {
			total += v
		}
	}
	return total
}
