// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

// Package validation provides struct validation using go-playground/validator v10.
//
// The package wraps the validator library in a thread-safe singleton and
// translates field errors into human-readable messages and into the API
// error format, so endpoints decoding request structs report rejected
// input uniformly.
//
// # Quick Start
//
//	type statRequest struct {
//	    Stat   string         `json:"stat" validate:"required"`
//	    Params map[string]any `json:"params"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    apiErr := err.ToAPIError()
//	    // respond 400 with apiErr.Code, apiErr.Message, apiErr.Details
//	}
//
// # Error Translation
//
// Validator tags translate to messages like "bucket_id is required" or
// "size must be greater than or equal to 0". Multiple failures are joined
// and each failing field is listed in the Details map of the converted
// APIError, so a producer can fix every problem in one round trip.
//
// # Validator Instance
//
// GetValidator exposes the singleton for callers that need validator
// features beyond ValidateStruct, such as variable validation. The
// instance is created with WithRequiredStructEnabled and caches struct
// metadata, so reuse is cheap and mandatory.
package validation
