// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package testinfra provides shared infrastructure for integration
// tests: a disposable search cluster in a container and an in-process
// event bus.
//
// Everything except this file is behind the integration build tag, so
// plain `go test ./...` never touches Docker:
//
//	go test -tags integration ./internal/testinfra/
//
// # Search Cluster
//
// SearchCluster starts a single-node cluster with security disabled and
// returns connection settings compatible with config.SearchConfig:
//
//	cluster, err := testinfra.NewSearchCluster(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer cluster.Terminate(ctx)
//
//	engine, err := search.NewESEngine(cluster.Config())
//
// The first run downloads the cluster image; later runs use the Docker
// cache. Tests call SkipIfNoDocker so machines without Docker skip
// instead of failing.
//
// # Event Bus
//
// StartBus runs the embedded JetStream server on a random port with
// storage under t.TempDir(), so parallel packages never collide:
//
//	cfg := testinfra.StartBus(t)
//	conn, js, err := eventbus.Connect(cfg, logger)
//
// The server is shut down through t.Cleanup.
package testinfra
