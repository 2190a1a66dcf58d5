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

	"github.com/statflow/statflow/internal/config"
	"github.com/statflow/statflow/internal/eventbus"
)

// StartBus runs an embedded JetStream server for the duration of the
// test and returns bus settings pointing at it. Storage lives under
// t.TempDir() and the listen port is random, so parallel tests do not
// collide.
func StartBus(t *testing.T) *config.NATSConfig {
	t.Helper()

	cfg := &config.NATSConfig{
		Enabled:        true,
		URL:            "nats://127.0.0.1:0",
		EmbeddedServer: true,
		StoreDir:       t.TempDir(),
		Exchange:       "statflow-test",
		FetchBatchSize: 100,
		FetchTimeout:   2 * time.Second,
		PublishTimeout: 5 * time.Second,
	}

	server, err := eventbus.NewEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("start embedded bus: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			t.Logf("shutdown embedded bus: %v", err)
		}
	})

	// Clients dial the port the server actually got.
	cfg.URL = server.ClientURL()
	return cfg
}
