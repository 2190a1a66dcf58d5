// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

// Result is a decoded search response body.
//
// Aggregation shapes are driven by runtime configuration, so responses
// stay generic maps and callers pull values out with the Nested helpers
// instead of unmarshaling into fixed structs.
type Result map[string]any

// TotalHits returns hits.total.value, or 0 when absent.
func (r Result) TotalHits() int {
	v, ok := NestedFloat(r, "hits", "total", "value")
	if !ok {
		return 0
	}
	return int(v)
}

// Hits returns the hit objects under hits.hits. Each entry still carries
// its metadata (_id, _index, _source).
func (r Result) Hits() []map[string]any {
	s, ok := NestedSlice(r, "hits", "hits")
	if !ok {
		return nil
	}
	return mapSlice(s)
}

// Sources returns the _source body of every hit.
func (r Result) Sources() []map[string]any {
	hits := r.Hits()
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		if src, ok := h["_source"].(map[string]any); ok {
			out = append(out, src)
		}
	}
	return out
}

// Aggregation returns one named aggregation from the response.
func (r Result) Aggregation(name string) (map[string]any, bool) {
	return NestedMap(r, "aggregations", name)
}

// Buckets returns the buckets of a named aggregation, or nil when the
// aggregation is absent or bucketless.
func (r Result) Buckets(name string) []map[string]any {
	s, ok := NestedSlice(r, "aggregations", name, "buckets")
	if !ok {
		return nil
	}
	return mapSlice(s)
}

// MetricValue unwraps a metric sub-aggregation body: single-value
// metrics carry "value", percentiles carry "values", multi-value
// metrics like stats are returned whole.
func MetricValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if value, ok := m["value"]; ok {
		return value
	}
	if values, ok := m["values"]; ok {
		return values
	}
	return m
}

// TopHitSource extracts the _source of the first hit of a bucket's
// "top_hit" top_hits sub-aggregation, or nil when the bucket has none.
func TopHitSource(bucket map[string]any) map[string]any {
	hits, ok := NestedSlice(bucket, "top_hit", "hits", "hits")
	if !ok || len(hits) == 0 {
		return nil
	}
	hit, ok := hits[0].(map[string]any)
	if !ok {
		return nil
	}
	src, _ := hit["_source"].(map[string]any)
	return src
}

// NestedMap walks a decoded JSON object along path and returns the map
// at the end of it.
func NestedMap(m map[string]any, path ...string) (map[string]any, bool) {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// NestedSlice walks a decoded JSON object along path and returns the
// array at the final key.
func NestedSlice(m map[string]any, path ...string) ([]any, bool) {
	parent, ok := parentOf(m, path)
	if !ok {
		return nil, false
	}
	s, ok := parent[path[len(path)-1]].([]any)
	return s, ok
}

// NestedString walks a decoded JSON object along path and returns the
// string at the final key.
func NestedString(m map[string]any, path ...string) (string, bool) {
	parent, ok := parentOf(m, path)
	if !ok {
		return "", false
	}
	s, ok := parent[path[len(path)-1]].(string)
	return s, ok
}

// NestedFloat walks a decoded JSON object along path and returns the
// number at the final key. JSON numbers decode as float64.
func NestedFloat(m map[string]any, path ...string) (float64, bool) {
	parent, ok := parentOf(m, path)
	if !ok {
		return 0, false
	}
	f, ok := parent[path[len(path)-1]].(float64)
	return f, ok
}

func parentOf(m map[string]any, path []string) (map[string]any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	if len(path) == 1 {
		return m, m != nil
	}
	return NestedMap(m, path[:len(path)-1]...)
}

func mapSlice(s []any) []map[string]any {
	out := make([]map[string]any, 0, len(s))
	for _, v := range s {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
