// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import "testing"

func TestSerializerRoundTrip(t *testing.T) {
	t.Parallel()

	event := map[string]any{
		"timestamp": "2026-08-24T10:00:00",
		"unique_id": "b7e6_f1a2",
		"size":      float64(1024),
		"is_robot":  false,
	}

	data, err := SerializeEvent(event)
	if err != nil {
		t.Fatalf("SerializeEvent: %v", err)
	}

	got, err := DeserializeEvent(data)
	if err != nil {
		t.Fatalf("DeserializeEvent: %v", err)
	}

	if got["timestamp"] != event["timestamp"] {
		t.Errorf("timestamp = %v, want %v", got["timestamp"], event["timestamp"])
	}
	if got["unique_id"] != event["unique_id"] {
		t.Errorf("unique_id = %v, want %v", got["unique_id"], event["unique_id"])
	}
	if got["size"] != float64(1024) {
		t.Errorf("size = %v (%T), want 1024 (float64)", got["size"], got["size"])
	}
	if got["is_robot"] != false {
		t.Errorf("is_robot = %v, want false", got["is_robot"])
	}
}

func TestSerializerRejectsNilEvent(t *testing.T) {
	t.Parallel()

	if _, err := SerializeEvent(nil); err == nil {
		t.Error("SerializeEvent(nil) succeeded, want error")
	}
}

func TestSerializerRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := DeserializeEvent([]byte("{not json")); err == nil {
		t.Error("DeserializeEvent on malformed input succeeded, want error")
	}
	if _, err := DeserializeEvent([]byte(`["array","not","object"]`)); err == nil {
		t.Error("DeserializeEvent on non-object succeeded, want error")
	}
}
