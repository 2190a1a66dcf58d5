// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/statflow/statflow/internal/aggregator"
	"github.com/statflow/statflow/internal/contrib"
	"github.com/statflow/statflow/internal/eventbus"
	"github.com/statflow/statflow/internal/indexer"
	"github.com/statflow/statflow/internal/processor"
	"github.com/statflow/statflow/internal/query"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/stats"
)

// openSearch builds the search engine and index namer from config.
func (a *app) openSearch() (*search.ESEngine, search.Namer, error) {
	engine, err := search.NewESEngine(&a.cfg.Search)
	if err != nil {
		return nil, search.Namer{}, fmt.Errorf("connect to search cluster: %w", err)
	}
	return engine, search.Namer{Prefix: a.cfg.Search.IndexPrefix}, nil
}

// errBusDisabled is returned by commands that cannot work without the
// event bus.
var errBusDisabled = errors.New("event bus is disabled (set nats.enabled or NATS_ENABLED)")

// openBus dials the event bus. Commands that need the bus fail fast
// when it is disabled rather than hanging on a dead URL.
func (a *app) openBus() (*natsgo.Conn, jetstream.JetStream, error) {
	if !a.cfg.NATS.Enabled {
		return nil, nil, errBusDisabled
	}
	return eventbus.Connect(&a.cfg.NATS, a.logger)
}

// openPublisher connects a publisher for task dispatch.
func (a *app) openPublisher() (*eventbus.Publisher, error) {
	if !a.cfg.NATS.Enabled {
		return nil, errBusDisabled
	}
	return eventbus.NewPublisher(&a.cfg.NATS, a.logger)
}

// openRegistry builds the stats registry with the built-in event
// types, aggregations and queries, wiring the preprocessor inputs
// (agent patterns, salt source, geo table) from the anonymization
// config. The returned cleanup releases the salt store when one was
// opened and must be called before exit.
func (a *app) openRegistry() (*stats.Registry, func(), error) {
	anon := a.cfg.Anonymization
	cleanup := func() {}

	robots, err := loadPatterns(processor.DefaultRobotPatterns(), anon.RobotsFile)
	if err != nil {
		return nil, nil, err
	}
	machines, err := loadPatterns(processor.DefaultMachinePatterns(), anon.MachinesFile)
	if err != nil {
		return nil, nil, err
	}

	var salts processor.SaltSource
	switch strings.ToLower(anon.SaltMode) {
	case "derived":
		salts = processor.NewDerivedSaltSource(anon.SaltSecret)
	default:
		store, err := processor.NewBadgerSaltStore(anon.SaltDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open salt store: %w", err)
		}
		salts = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to close salt store")
			}
		}
	}

	var geo processor.CountryResolver
	if anon.GeoDBPath != "" {
		table, err := processor.LoadCSVCountryTable(anon.GeoDBPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load geo table: %w", err)
		}
		geo = table
	}

	reg := stats.NewRegistry()
	if err := contrib.Register(reg, contrib.Options{
		Robots:   robots,
		Machines: machines,
		Salts:    salts,
		Geo:      geo,
	}); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("register built-in stats: %w", err)
	}
	return reg, cleanup, nil
}

// openCatalog builds a registry for name resolution and bus or index
// administration. It skips the processor dependencies, so it opens no
// salt store and is safe to run while a daemon holds the store lock.
// Event types from it must not process events; eager indexing goes
// through openRegistry instead.
func (a *app) openCatalog() (*stats.Registry, error) {
	robots, err := loadPatterns(processor.DefaultRobotPatterns(), "")
	if err != nil {
		return nil, err
	}
	machines, err := loadPatterns(processor.DefaultMachinePatterns(), "")
	if err != nil {
		return nil, err
	}
	reg := stats.NewRegistry()
	if err := contrib.Register(reg, contrib.Options{Robots: robots, Machines: machines}); err != nil {
		return nil, fmt.Errorf("register built-in stats: %w", err)
	}
	return reg, nil
}

// loadPatterns compiles the default agent patterns plus any extras
// from an operator-provided pattern file.
func loadPatterns(defaults []string, path string) (*processor.AgentMatcher, error) {
	patterns := defaults
	if path != "" {
		extra, err := processor.LoadPatternFile(path)
		if err != nil {
			return nil, fmt.Errorf("load patterns from %s: %w", path, err)
		}
		patterns = append(patterns, extra...)
	}
	m, err := processor.NewAgentMatcher(patterns)
	if err != nil {
		return nil, fmt.Errorf("compile agent patterns: %w", err)
	}
	return m, nil
}

// selectEventTypes resolves the event types a command operates on:
// the named ones, or every enabled one when no names are given.
// Naming an unknown or disabled type is an input error.
func (a *app) selectEventTypes(reg *stats.Registry, names []string) ([]stats.EventType, error) {
	enabled := a.cfg.Stats.EnabledEvents
	if len(names) == 0 {
		var defs []stats.EventType
		for _, def := range reg.EventTypes() {
			if stats.Enabled(def.Name, enabled) {
				defs = append(defs, def)
			}
		}
		return defs, nil
	}
	defs := make([]stats.EventType, 0, len(names))
	for _, name := range names {
		def, err := reg.EventType(name)
		if err != nil {
			return nil, invalidInput("unknown event type %q", name)
		}
		if !stats.Enabled(name, enabled) {
			return nil, invalidInput("event type %q is disabled", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// selectAggregations resolves aggregation configs the same way.
func (a *app) selectAggregations(reg *stats.Registry, names []string) ([]stats.AggregationConfig, error) {
	enabled := a.cfg.Stats.EnabledAggregations
	if len(names) == 0 {
		var cfgs []stats.AggregationConfig
		for _, cfg := range reg.Aggregations() {
			if stats.Enabled(cfg.Name, enabled) {
				cfgs = append(cfgs, cfg)
			}
		}
		return cfgs, nil
	}
	cfgs := make([]stats.AggregationConfig, 0, len(names))
	for _, name := range names {
		cfg, err := reg.Aggregation(name)
		if err != nil {
			return nil, invalidInput("unknown aggregation %q", name)
		}
		if !stats.Enabled(name, enabled) {
			return nil, invalidInput("aggregation %q is disabled", name)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// buildIndexers constructs one indexer per event type, all draining
// from the same consumer.
func (a *app) buildIndexers(consumer *eventbus.Consumer, engine search.Engine, namer search.Namer, defs []stats.EventType) ([]*indexer.Indexer, error) {
	ixs := make([]*indexer.Indexer, 0, len(defs))
	for _, def := range defs {
		ix, err := indexer.New(consumer, engine, namer, def, a.cfg.Anonymization.DoubleClickWindow, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build indexer for %s: %w", def.Name, err)
		}
		ixs = append(ixs, ix)
	}
	return ixs, nil
}

// buildAggregators constructs one aggregator per config.
func (a *app) buildAggregators(engine search.Engine, namer search.Namer, cfgs []stats.AggregationConfig) ([]*aggregator.Aggregator, error) {
	aggs := make([]*aggregator.Aggregator, 0, len(cfgs))
	for _, cfg := range cfgs {
		agg, err := aggregator.New(engine, namer, cfg, a.cfg.Search.MaxBucketSize, a.cfg.Stats.BookmarkRefreshInterval, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build aggregator %s: %w", cfg.Name, err)
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// buildQueries constructs the enabled query executors keyed by name.
func (a *app) buildQueries(reg *stats.Registry, engine search.Engine, namer search.Namer) (map[string]*query.Executor, error) {
	executors := make(map[string]*query.Executor)
	for _, cfg := range reg.Queries() {
		if !stats.Enabled(cfg.Name, a.cfg.Stats.EnabledQueries) {
			continue
		}
		exec, err := query.New(engine, namer, cfg, a.cfg.Search.MaxBucketSize, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build query %s: %w", cfg.Name, err)
		}
		executors[cfg.Name] = exec
	}
	return executors, nil
}

// eventTypeNames returns the sorted names of the given definitions.
func eventTypeNames(defs []stats.EventType) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// aggregationNames returns the sorted names of the given configs.
func aggregationNames(cfgs []stats.AggregationConfig) []string {
	names := make([]string, 0, len(cfgs))
	for _, cfg := range cfgs {
		names = append(names, cfg.Name)
	}
	sort.Strings(names)
	return names
}
