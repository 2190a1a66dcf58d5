// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/statflow/statflow/internal/config"
)

const defaultBulkChunkSize = 50

// ESEngine implements Engine against an Elasticsearch cluster using the
// official v8 client.
type ESEngine struct {
	client  *elasticsearch.Client
	chunk   int
	limiter *rate.Limiter
	timeout time.Duration
}

// NewESEngine creates an engine from the search configuration.
func NewESEngine(cfg *config.SearchConfig) (*ESEngine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	chunk := cfg.BulkChunkSize
	if chunk <= 0 {
		chunk = defaultBulkChunkSize
	}

	// Rate limiting paces bulk requests, not individual documents.
	// Zero disables it.
	var limiter *rate.Limiter
	if cfg.BulkThrottleRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BulkThrottleRPS), 1)
	}

	return &ESEngine{
		client:  client,
		chunk:   chunk,
		limiter: limiter,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Ping verifies cluster connectivity.
func (e *ESEngine) Ping(ctx context.Context) error {
	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := esapi.InfoRequest{}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("cluster info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return respError(res, "cluster info")
	}
	return nil
}

// Bulk implements Engine.
func (e *ESEngine) Bulk(ctx context.Context, actions []BulkAction) (BulkResult, error) {
	var result BulkResult
	for start := 0; start < len(actions); start += e.chunk {
		end := min(start+e.chunk, len(actions))

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return result, fmt.Errorf("bulk throttle: %w", err)
			}
		}

		part, err := e.bulkChunk(ctx, actions[start:end])
		result.Merge(part)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *ESEngine) bulkChunk(ctx context.Context, actions []BulkAction) (BulkResult, error) {
	var buf bytes.Buffer
	for _, a := range actions {
		op := a.OpType
		if op == "" {
			op = BulkOpIndex
		}

		header := map[string]any{"_index": a.Index}
		if a.DocID != "" {
			header["_id"] = a.DocID
		}
		meta, err := json.Marshal(map[string]any{string(op): header})
		if err != nil {
			return BulkResult{}, fmt.Errorf("encode bulk action: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')

		if op == BulkOpDelete {
			continue
		}
		doc, err := json.Marshal(a.Doc)
		if err != nil {
			return BulkResult{}, fmt.Errorf("encode bulk document: %w", err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := esapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}.Do(ctx, e.client)
	if err != nil {
		return BulkResult{}, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return BulkResult{}, respError(res, "bulk")
	}

	var body struct {
		Items []map[string]struct {
			Index  string `json:"_index"`
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return BulkResult{}, fmt.Errorf("decode bulk response: %w", err)
	}

	var out BulkResult
	for _, item := range body.Items {
		for _, status := range item {
			if status.Status >= http.StatusOK && status.Status < http.StatusMultipleChoices {
				out.Succeeded++
				continue
			}
			out.Failed++
			itemErr := BulkItemError{Index: status.Index, DocID: status.ID, Status: status.Status}
			if status.Error != nil {
				itemErr.Type = status.Error.Type
				itemErr.Reason = status.Error.Reason
			}
			out.Errors = append(out.Errors, itemErr)
		}
	}
	return out, nil
}

// Search implements Engine.
func (e *ESEngine) Search(ctx context.Context, index string, query map[string]any, opts ...SearchOption) (Result, error) {
	o := ResolveSearchOptions(opts...)

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	if o.IgnoreUnavailable {
		req.IgnoreUnavailable = esapi.BoolPtr(true)
	}
	if o.DisableCache {
		req.RequestCache = esapi.BoolPtr(false)
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, respError(res, "search "+index)
	}

	var result Result
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return result, nil
}

// IndexExists implements Engine.
func (e *ESEngine) IndexExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, e.client)
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, respError(res, "index exists "+name)
	}
}

// CreateIndex implements Engine.
func (e *ESEngine) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	req := esapi.IndicesCreateRequest{Index: name}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode index body: %w", err)
		}
		req.Body = bytes.NewReader(b)
	}

	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg := readBody(res)
		// Concurrent creators race on dated indices; losing is fine.
		if res.StatusCode == http.StatusBadRequest && strings.Contains(msg, "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("%w: create index %s: [%s] %s", ErrRequestFailed, name, res.Status(), msg)
	}
	return nil
}

// PutIndexTemplate implements Engine.
func (e *ESEngine) PutIndexTemplate(ctx context.Context, name string, body []byte) error {
	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := esapi.IndicesPutIndexTemplateRequest{Name: name, Body: bytes.NewReader(body)}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("put index template %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return respError(res, "put index template "+name)
	}
	return nil
}

// DeleteIndexTemplate implements Engine.
func (e *ESEngine) DeleteIndexTemplate(ctx context.Context, name string) error {
	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	res, err := esapi.IndicesDeleteIndexTemplateRequest{Name: name}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete index template %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return respError(res, "delete index template "+name)
	}
	return nil
}

// Flush implements Engine.
func (e *ESEngine) Flush(ctx context.Context, index string) error {
	ctx, cancel := e.requestCtx(ctx)
	defer cancel()

	flush, err := esapi.IndicesFlushRequest{
		Index:             []string{index},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("flush %s: %w", index, err)
	}
	defer flush.Body.Close()
	if flush.IsError() && flush.StatusCode != http.StatusNotFound {
		return respError(flush, "flush "+index)
	}

	refresh, err := esapi.IndicesRefreshRequest{
		Index:             []string{index},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	defer refresh.Body.Close()
	if refresh.IsError() && refresh.StatusCode != http.StatusNotFound {
		return respError(refresh, "refresh "+index)
	}
	return nil
}

// Reindex implements Engine. The caller's context bounds the call: a
// large source can take well past the configured request timeout, so no
// per-request deadline is applied here.
func (e *ESEngine) Reindex(ctx context.Context, source, dest string) error {
	body, err := json.Marshal(map[string]any{
		"source": map[string]any{"index": source},
		"dest":   map[string]any{"index": dest},
	})
	if err != nil {
		return fmt.Errorf("encode reindex body: %w", err)
	}

	res, err := esapi.ReindexRequest{
		Body:              bytes.NewReader(body),
		WaitForCompletion: esapi.BoolPtr(true),
		Refresh:           esapi.BoolPtr(true),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("reindex %s to %s: %w", source, dest, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return respError(res, fmt.Sprintf("reindex %s to %s", source, dest))
	}
	return nil
}

func (e *ESEngine) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func readBody(res *esapi.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return strings.TrimSpace(string(body))
}

func respError(res *esapi.Response, op string) error {
	msg := readBody(res)
	if msg == "" {
		msg = res.Status()
	}
	kind := ErrRequestFailed
	if res.StatusCode == http.StatusNotFound {
		kind = ErrIndexNotFound
	}
	return fmt.Errorf("%w: %s: [%s] %s", kind, op, res.Status(), msg)
}
