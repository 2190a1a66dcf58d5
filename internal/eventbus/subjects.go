// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

// DefaultExchange is the JetStream stream name used when none is configured.
const DefaultExchange = "events"

const durablePrefix = "stats-"

// TaskToken is the reserved subject token for background task dispatch.
// No event type may use it as a name. The task runner drains it exactly
// like an event type, which keeps one consumer path for both.
const TaskToken = "tasks"

// EventSubject returns the subject events of the given type are published to.
func EventSubject(exchange, eventType string) string {
	return exchange + "." + eventType
}

// TaskSubject returns the subject background task requests are published to.
func TaskSubject(exchange string) string {
	return exchange + "." + TaskToken
}

// DurableName returns the durable consumer name for an event type.
func DurableName(eventType string) string {
	return durablePrefix + eventType
}

// TaskDurable returns the durable consumer name for the task runner.
func TaskDurable() string {
	return durablePrefix + TaskToken
}

// StreamSubjects returns the subject filter the stream is created with.
// A single wildcard covers every event type plus task dispatch.
func StreamSubjects(exchange string) []string {
	return []string{exchange + ".>"}
}
