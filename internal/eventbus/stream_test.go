// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/statflow/statflow/internal/config"
)

func newTestManager(t *testing.T, js JetStreamContext) *StreamManager {
	t.Helper()
	mgr, err := NewStreamManager(js, &config.NATSConfig{Exchange: "events"})
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	return mgr
}

func TestNewStreamManagerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewStreamManager(nil, &config.NATSConfig{}); err == nil {
		t.Error("nil JetStream context accepted, want error")
	}
	if _, err := NewStreamManager(NewMockJetStreamContext(), nil); err == nil {
		t.Error("nil config accepted, want error")
	}

	mgr, err := NewStreamManager(NewMockJetStreamContext(), &config.NATSConfig{})
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	if mgr.Exchange() != DefaultExchange {
		t.Errorf("Exchange = %q, want %q", mgr.Exchange(), DefaultExchange)
	}
}

func TestEnsureStreamCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	mgr := newTestManager(t, js)

	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}

	if js.createCalls != 1 || js.updateCalls != 0 {
		t.Errorf("createCalls = %d, updateCalls = %d, want 1, 0", js.createCalls, js.updateCalls)
	}

	stream, ok := js.streams["events"]
	if !ok {
		t.Fatal("stream events not created")
	}
	cfg := stream.config
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != "events.>" {
		t.Errorf("Subjects = %v, want [events.>]", cfg.Subjects)
	}
	if cfg.Retention != jetstream.LimitsPolicy {
		t.Errorf("Retention = %v, want LimitsPolicy", cfg.Retention)
	}
	if cfg.Storage != jetstream.FileStorage {
		t.Errorf("Storage = %v, want FileStorage", cfg.Storage)
	}
	if cfg.MaxAge != streamMaxAge {
		t.Errorf("MaxAge = %v, want %v", cfg.MaxAge, streamMaxAge)
	}
	if cfg.Duplicates != dedupWindow {
		t.Errorf("Duplicates = %v, want %v", cfg.Duplicates, dedupWindow)
	}
	if !cfg.AllowDirect {
		t.Error("AllowDirect = false, want true")
	}
}

func TestEnsureStreamUpdatesWhenPresent(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	js.streams["events"] = &MockStream{}
	mgr := newTestManager(t, js)

	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	if js.createCalls != 0 || js.updateCalls != 1 {
		t.Errorf("createCalls = %d, updateCalls = %d, want 0, 1", js.createCalls, js.updateCalls)
	}
}

func TestEnsureStreamPropagatesCheckError(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	js.streamErr = errors.New("connection refused")
	mgr := newTestManager(t, js)

	if _, err := mgr.EnsureStream(context.Background()); err == nil {
		t.Error("EnsureStream succeeded, want error")
	}
}

func TestEnsureConsumerConfig(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	mgr := newTestManager(t, js)

	if err := mgr.EnsureConsumer(context.Background(), "file-download"); err != nil {
		t.Fatalf("EnsureConsumer: %v", err)
	}

	cfg, ok := js.consumers["stats-file-download"]
	if !ok {
		t.Fatal("consumer stats-file-download not created")
	}
	if cfg.FilterSubject != "events.file-download" {
		t.Errorf("FilterSubject = %q, want events.file-download", cfg.FilterSubject)
	}
	if cfg.AckPolicy != jetstream.AckExplicitPolicy {
		t.Errorf("AckPolicy = %v, want AckExplicitPolicy", cfg.AckPolicy)
	}
	if cfg.DeliverPolicy != jetstream.DeliverAllPolicy {
		t.Errorf("DeliverPolicy = %v, want DeliverAllPolicy", cfg.DeliverPolicy)
	}
	if cfg.MaxDeliver != maxDeliver {
		t.Errorf("MaxDeliver = %d, want %d", cfg.MaxDeliver, maxDeliver)
	}
}

func TestPurgeEvents(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	stream := &MockStream{}
	js.streams["events"] = stream
	mgr := newTestManager(t, js)

	if err := mgr.PurgeEvents(context.Background(), "file-download"); err != nil {
		t.Fatalf("PurgeEvents: %v", err)
	}

	subjects := stream.PurgedSubjects()
	if len(subjects) != 1 || subjects[0] != "events.file-download" {
		t.Errorf("purged subjects = %v, want [events.file-download]", subjects)
	}
}

func TestPurgeEventsMissingStream(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t, NewMockJetStreamContext())
	if err := mgr.PurgeEvents(context.Background(), "file-download"); err == nil {
		t.Error("PurgeEvents on missing stream succeeded, want error")
	}
}

func TestDeleteConsumerIdempotent(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	mgr := newTestManager(t, js)

	if err := mgr.DeleteConsumer(context.Background(), "file-download"); err != nil {
		t.Fatalf("DeleteConsumer: %v", err)
	}
	if len(js.deletedConsumers) != 1 || js.deletedConsumers[0] != "stats-file-download" {
		t.Errorf("deleted = %v, want [stats-file-download]", js.deletedConsumers)
	}

	js.deleteErr = jetstream.ErrConsumerNotFound
	if err := mgr.DeleteConsumer(context.Background(), "file-download"); err != nil {
		t.Errorf("DeleteConsumer on missing consumer = %v, want nil", err)
	}

	js.deleteErr = errors.New("server unavailable")
	if err := mgr.DeleteConsumer(context.Background(), "file-download"); err == nil {
		t.Error("DeleteConsumer with server error succeeded, want error")
	}
}

func TestDeleteStreamIdempotent(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	js.streams["events"] = &MockStream{}
	mgr := newTestManager(t, js)

	if err := mgr.DeleteStream(context.Background()); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	// Second delete hits ErrStreamNotFound and stays silent.
	if err := mgr.DeleteStream(context.Background()); err != nil {
		t.Errorf("DeleteStream on missing stream = %v, want nil", err)
	}
}

func TestIsHealthy(t *testing.T) {
	t.Parallel()

	js := NewMockJetStreamContext()
	mgr := newTestManager(t, js)

	if mgr.IsHealthy(context.Background()) {
		t.Error("IsHealthy = true before stream exists")
	}

	js.streams["events"] = &MockStream{}
	if !mgr.IsHealthy(context.Background()) {
		t.Error("IsHealthy = false with stream present")
	}
}
