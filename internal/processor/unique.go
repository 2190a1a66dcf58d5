// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"errors"

	"github.com/statflow/statflow/internal/stats"
)

var (
	errMissingFileFields   = errors.New("file-download event missing bucket_id or file_id")
	errMissingRecordFields = errors.New("record-view event missing pid_type or pid_value")
)

// BuildFileUniqueID returns a processor deriving unique_id for
// file-download events from the bucket and file identifiers. The id is
// what download rollups group by, so two replicas of the same file in
// different buckets count separately.
func BuildFileUniqueID() stats.Processor {
	return stats.ProcessorFunc(func(_ context.Context, event map[string]any) (map[string]any, error) {
		bucket, _ := event["bucket_id"].(string)
		file, _ := event["file_id"].(string)
		if bucket == "" || file == "" {
			return nil, errMissingFileFields
		}
		event["unique_id"] = bucket + "_" + file
		return event, nil
	})
}

// BuildRecordUniqueID returns a processor deriving unique_id for
// record-view events from the persistent identifier.
func BuildRecordUniqueID() stats.Processor {
	return stats.ProcessorFunc(func(_ context.Context, event map[string]any) (map[string]any, error) {
		pidType, _ := event["pid_type"].(string)
		pidValue, _ := event["pid_value"].(string)
		if pidType == "" || pidValue == "" {
			return nil, errMissingRecordFields
		}
		event["unique_id"] = pidType + "_" + pidValue
		return event, nil
	})
}
