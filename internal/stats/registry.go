// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package stats

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered event types, aggregations and queries of a
// deployment. It is safe for concurrent use; registration normally happens
// once at startup and lookups dominate afterwards.
type Registry struct {
	mu           sync.RWMutex
	events       map[string]EventType
	aggregations map[string]AggregationConfig
	queries      map[string]QueryConfig
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		events:       make(map[string]EventType),
		aggregations: make(map[string]AggregationConfig),
		queries:      make(map[string]QueryConfig),
	}
}

// reservedEventTypeName is the subject token the event bus uses for
// background task dispatch; an event stream of that name would collide
// with the task queue.
const reservedEventTypeName = "tasks"

// RegisterEventType adds an event stream to the registry.
func (r *Registry) RegisterEventType(et EventType) error {
	if et.Name == "" {
		return ErrEmptyName
	}
	if et.Name == reservedEventTypeName {
		return fmt.Errorf("%w: %s", ErrReservedName, et.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[et.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEventType, et.Name)
	}
	r.events[et.Name] = et
	return nil
}

// EventType looks up a registered event stream by name.
func (r *Registry) EventType(name string) (EventType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	et, ok := r.events[name]
	if !ok {
		return EventType{}, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}
	return et, nil
}

// HasEventType reports whether the named event stream is registered.
func (r *Registry) HasEventType(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.events[name]
	return ok
}

// EventTypes returns the registered event streams sorted by name.
func (r *Registry) EventTypes() []EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventType, 0, len(r.events))
	for _, et := range r.events {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterAggregation adds an aggregation to the registry.
func (r *Registry) RegisterAggregation(cfg AggregationConfig) error {
	if cfg.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.aggregations[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAggregation, cfg.Name)
	}
	r.aggregations[cfg.Name] = cfg
	return nil
}

// Aggregation looks up a registered aggregation by name.
func (r *Registry) Aggregation(name string) (AggregationConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.aggregations[name]
	if !ok {
		return AggregationConfig{}, fmt.Errorf("%w: %s", ErrUnknownAggregation, name)
	}
	return cfg, nil
}

// Aggregations returns the registered aggregations sorted by name.
func (r *Registry) Aggregations() []AggregationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AggregationConfig, 0, len(r.aggregations))
	for _, cfg := range r.aggregations {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterQuery adds a query to the registry.
func (r *Registry) RegisterQuery(cfg QueryConfig) error {
	if cfg.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queries[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateQuery, cfg.Name)
	}
	r.queries[cfg.Name] = cfg
	return nil
}

// Query looks up a registered query by name.
func (r *Registry) Query(name string) (QueryConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.queries[name]
	if !ok {
		return QueryConfig{}, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	return cfg, nil
}

// Queries returns the registered queries sorted by name.
func (r *Registry) Queries() []QueryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]QueryConfig, 0, len(r.queries))
	for _, cfg := range r.queries {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled reports whether name passes an enabled-subset list. An empty list
// enables everything.
func Enabled(name string, enabled []string) bool {
	if len(enabled) == 0 {
		return true
	}
	for _, e := range enabled {
		if e == name {
			return true
		}
	}
	return false
}
