// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"testing"
)

func TestBuildFileUniqueID(t *testing.T) {
	t.Parallel()

	event := map[string]any{
		"bucket_id": "b7e6",
		"file_id":   "f1a2",
		"file_key":  "report.pdf",
	}

	got, err := BuildFileUniqueID().Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got["unique_id"] != "b7e6_f1a2" {
		t.Errorf("unique_id = %v, want b7e6_f1a2", got["unique_id"])
	}
}

func TestBuildRecordUniqueID(t *testing.T) {
	t.Parallel()

	event := map[string]any{
		"pid_type":  "doi",
		"pid_value": "10.1234/foo",
	}

	got, err := BuildRecordUniqueID().Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got["unique_id"] != "doi_10.1234/foo" {
		t.Errorf("unique_id = %v, want doi_10.1234/foo", got["unique_id"])
	}
}

func TestBuildUniqueIDMissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		proc  string
		event map[string]any
	}{
		{"file no bucket", "file", map[string]any{"file_id": "f1"}},
		{"file no file", "file", map[string]any{"bucket_id": "b1"}},
		{"record no type", "record", map[string]any{"pid_value": "1"}},
		{"record no value", "record", map[string]any{"pid_type": "recid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err error
			switch tt.proc {
			case "file":
				_, err = BuildFileUniqueID().Process(context.Background(), tt.event)
			case "record":
				_, err = BuildRecordUniqueID().Process(context.Background(), tt.event)
			}
			if err == nil {
				t.Error("Process succeeded, want error")
			}
		})
	}
}
