// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package eventbus binds usage events to NATS JetStream.
//
// Every event type owns one subject on a shared stream (the "exchange"):
//
//	<exchange>.<event-type>        e.g. events.file-download
//
// and one durable pull consumer:
//
//	stats-<event-type>             e.g. stats-file-download
//
// The subject token "tasks" is reserved for background task dispatch and must
// not be used as an event type name.
//
// # Components
//
//   - Publisher: Watermill JetStream publisher. Publish returns after the
//     broker has acknowledged every message of the batch; publishes run
//     through a circuit breaker so a broker outage fails fast instead of
//     stalling producers.
//   - Consumer: drains whatever is currently enqueued for one event type
//     through its durable consumer and hands each decoded event to a handler.
//     The indexer is a periodic pull worker, not a long-lived subscriber.
//   - StreamManager: idempotent stream and consumer lifecycle (declare,
//     purge, delete) used at startup and by the queue admin commands.
//   - EmbeddedServer: optional in-process JetStream server for single-node
//     deployments and tests.
//
// Delivery is at-least-once. Duplicates are expected and are reconciled
// downstream by the indexer's deterministic document ids.
package eventbus
