// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by Engine implementations.
var (
	// ErrRequestFailed indicates the cluster rejected a request with a
	// non-retryable status. The wrapped message carries the status and
	// the reason reported by the cluster.
	ErrRequestFailed = errors.New("search request failed")

	// ErrIndexNotFound indicates the target index or alias does not
	// exist. Query callers map it to an empty result instead of failing.
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnknownTemplate indicates a template name with no registered body.
	ErrUnknownTemplate = errors.New("unknown index template")
)

// BulkOpType selects the operation performed for a single bulk action.
type BulkOpType string

const (
	// BulkOpIndex creates the document, overwriting any existing
	// document with the same ID.
	BulkOpIndex BulkOpType = "index"

	// BulkOpDelete removes the document. Missing documents are counted
	// as failures by the cluster but do not fail the request.
	BulkOpDelete BulkOpType = "delete"
)

// BulkAction describes one document operation in a bulk request.
type BulkAction struct {
	// OpType is the bulk operation, BulkOpIndex when empty.
	OpType BulkOpType

	// Index is the target index or write alias.
	Index string

	// DocID is the document ID. The pipeline derives deterministic IDs
	// so replays overwrite instead of duplicating; an empty DocID lets
	// the engine assign one, which the append-only bookmark log uses.
	DocID string

	// Doc is the document body. Ignored for deletes.
	Doc map[string]any
}

// BulkItemError describes one failed item from a bulk response.
type BulkItemError struct {
	Index  string
	DocID  string
	Status int
	Type   string
	Reason string
}

func (e BulkItemError) Error() string {
	return fmt.Sprintf("bulk %s/%s: [%d] %s: %s", e.Index, e.DocID, e.Status, e.Type, e.Reason)
}

// BulkResult summarizes a bulk call. Item-level failures do not fail the
// call itself; callers inspect Failed and Errors.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// Merge folds another result into this one.
func (r *BulkResult) Merge(other BulkResult) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// SearchOption customizes a single search request.
type SearchOption func(*SearchOptions)

// SearchOptions collects per-request flags. Engine implementations
// resolve the variadic options with ResolveSearchOptions.
type SearchOptions struct {
	IgnoreUnavailable bool
	DisableCache      bool
}

// ResolveSearchOptions folds opts into a SearchOptions value.
func ResolveSearchOptions(opts ...SearchOption) SearchOptions {
	var o SearchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIgnoreUnavailable makes the search treat missing indices as empty
// instead of failing. Used when querying aliases that may not have any
// backing index yet.
func WithIgnoreUnavailable() SearchOption {
	return func(o *SearchOptions) { o.IgnoreUnavailable = true }
}

// WithoutRequestCache bypasses the shard request cache. Aggregation runs
// use this so a rerun over a window observes freshly indexed events.
func WithoutRequestCache() SearchOption {
	return func(o *SearchOptions) { o.DisableCache = true }
}

// Engine is the search backend surface used by the event indexer, the
// aggregators, the bookmark store and the query engine.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Bulk executes the given actions, splitting them into chunks
	// internally. Transport failures abort the call; item failures are
	// reported through the result.
	Bulk(ctx context.Context, actions []BulkAction) (BulkResult, error)

	// Search runs a query against an index or alias and returns the
	// decoded response body.
	Search(ctx context.Context, index string, query map[string]any, opts ...SearchOption) (Result, error)

	// IndexExists reports whether an index or alias exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// CreateIndex creates an index. A nil body creates it with whatever
	// matching index templates provide. Creating an index that already
	// exists is not an error.
	CreateIndex(ctx context.Context, name string, body map[string]any) error

	// PutIndexTemplate installs or replaces a composable index template.
	PutIndexTemplate(ctx context.Context, name string, body []byte) error

	// DeleteIndexTemplate removes a composable index template. Deleting
	// a template that does not exist is not an error.
	DeleteIndexTemplate(ctx context.Context, name string) error

	// Flush flushes and refreshes an index so everything written before
	// the call is visible to searches after it. Missing indices are
	// ignored.
	Flush(ctx context.Context, index string) error

	// Reindex copies all documents from source into dest, waiting for
	// completion.
	Reindex(ctx context.Context, source, dest string) error
}
