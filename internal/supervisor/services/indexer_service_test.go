// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*IndexerScheduler)(nil)

type fakeIndexer struct {
	mu        sync.Mutex
	eventType string
	runs      int
	indexed   int
	err       error
}

func (f *fakeIndexer) EventType() string {
	return f.eventType
}

func (f *fakeIndexer) Run(ctx context.Context) (int, int, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.indexed, 0, f.err
}

func (f *fakeIndexer) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func TestIndexerSchedulerRunsImmediately(t *testing.T) {
	t.Parallel()

	ix := &fakeIndexer{eventType: "record-view", indexed: 4}
	svc := NewIndexerScheduler([]EventIndexer{ix}, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = svc.Serve(ctx)

	if got := ix.runCount(); got != 1 {
		t.Errorf("Run called %d times, want 1 immediate pass", got)
	}
}

func TestIndexerSchedulerRunsOnInterval(t *testing.T) {
	t.Parallel()

	ix := &fakeIndexer{eventType: "record-view"}
	svc := NewIndexerScheduler([]EventIndexer{ix}, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	_ = svc.Serve(ctx)

	// One immediate pass plus at least two ticks.
	if got := ix.runCount(); got < 3 {
		t.Errorf("Run called %d times, want >= 3", got)
	}
}

func TestIndexerSchedulerSurvivesFailingEventType(t *testing.T) {
	t.Parallel()

	broken := &fakeIndexer{eventType: "record-view", err: errors.New("search unavailable")}
	healthy := &fakeIndexer{eventType: "file-download", indexed: 2}
	svc := NewIndexerScheduler([]EventIndexer{broken, healthy}, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}

	if got := healthy.runCount(); got != 1 {
		t.Errorf("healthy indexer ran %d times, want 1 despite the broken one", got)
	}
}

func TestIndexerSchedulerDefaultInterval(t *testing.T) {
	t.Parallel()

	svc := NewIndexerScheduler(nil, 0, zerolog.Nop())
	if svc.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", svc.interval)
	}
	if got := svc.String(); got != "indexer-scheduler" {
		t.Errorf("String() = %q, want %q", got, "indexer-scheduler")
	}
}
