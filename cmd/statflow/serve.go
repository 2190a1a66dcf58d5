// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/aggregator"
	"github.com/statflow/statflow/internal/api"
	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/eventbus"
	"github.com/statflow/statflow/internal/indexer"
	"github.com/statflow/statflow/internal/logging"
	"github.com/statflow/statflow/internal/search"
	"github.com/statflow/statflow/internal/supervisor"
	"github.com/statflow/statflow/internal/supervisor/services"
	"github.com/statflow/statflow/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Statflow daemon",
		Long: `Run the full telemetry pipeline: the HTTP API, the periodic indexer
and aggregation schedulers, the background task runner, and optionally
an embedded event bus server.

Services run under a supervision tree. A crashing component restarts
with backoff while the rest keep serving; the API stays up on already
aggregated data even when the bus is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info().
		Str("version", version).
		Str("environment", a.cfg.Server.Environment).
		Msg("Statflow starting")

	// Event bus. The embedded server starts first so the client
	// connection below has something to dial.
	var busServer *eventbus.EmbeddedServer
	if a.cfg.NATS.Enabled && a.cfg.NATS.EmbeddedServer {
		server, err := eventbus.NewEmbeddedServer(&a.cfg.NATS)
		if err != nil {
			return fmt.Errorf("start embedded bus server: %w", err)
		}
		busServer = server
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := busServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("Embedded bus server shutdown failed")
			}
		}()
		a.cfg.NATS.URL = busServer.ClientURL()
		a.logger.Info().Str("url", a.cfg.NATS.URL).Msg("Embedded bus server started")
	}

	var (
		conn      *natsgo.Conn
		js        jetstream.JetStream
		streams   *eventbus.StreamManager
		publisher *eventbus.Publisher
		consumer  *eventbus.Consumer
	)
	if a.cfg.NATS.Enabled {
		var err error
		conn, js, err = eventbus.Connect(&a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("connect to event bus: %w", err)
		}
		defer conn.Close()

		streams, err = eventbus.NewStreamManager(js, &a.cfg.NATS)
		if err != nil {
			return fmt.Errorf("build stream manager: %w", err)
		}
		publisher, err = eventbus.NewPublisher(&a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("build event publisher: %w", err)
		}
		defer publisher.Close()
		consumer, err = eventbus.NewConsumer(js, &a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("build event consumer: %w", err)
		}
	} else {
		a.logger.Warn().Msg("Event bus disabled; running query-only, no ingest or indexing")
	}

	// Search cluster. Misconfiguration surfaces here instead of as a
	// restart loop; transient outages after startup are handled by the
	// supervised services.
	engine, namer, err := a.openSearch()
	if err != nil {
		return err
	}
	pingCtx, done := context.WithTimeout(ctx, 10*time.Second)
	err = engine.Ping(pingCtx)
	done()
	if err != nil {
		return fmt.Errorf("search cluster unreachable: %w", err)
	}

	// Index templates are idempotent, so the daemon reasserts them on
	// every boot. A fresh cluster still needs `statflow init` once for
	// the bookmark index.
	templates, err := search.NewTemplateManager(engine, namer)
	if err != nil {
		return fmt.Errorf("build template manager: %w", err)
	}
	if err := templates.PutAll(ctx); err != nil {
		return fmt.Errorf("put index templates: %w", err)
	}

	// Pipeline components for the enabled subset of the registry.
	reg, cleanup, err := a.openRegistry()
	if err != nil {
		return err
	}
	defer cleanup()

	defs, err := a.selectEventTypes(reg, nil)
	if err != nil {
		return err
	}
	aggCfgs, err := a.selectAggregations(reg, nil)
	if err != nil {
		return err
	}
	queries, err := a.buildQueries(reg, engine, namer)
	if err != nil {
		return err
	}

	var indexers []*indexer.Indexer
	if consumer != nil {
		indexers, err = a.buildIndexers(consumer, engine, namer, defs)
		if err != nil {
			return err
		}
	}
	aggregators, err := a.buildAggregators(engine, namer, aggCfgs)
	if err != nil {
		return err
	}

	// Auth.
	var verifier *auth.Verifier
	if strings.ToLower(a.cfg.Auth.Mode) == "jwt" {
		verifier, err = auth.NewVerifier(a.cfg.Auth.JWTSecret)
		if err != nil {
			return fmt.Errorf("build token verifier: %w", err)
		}
	}
	factory := strings.ToLower(a.cfg.Auth.PermissionFactory)
	var enforcer *auth.Enforcer
	if factory == auth.FactoryCasbin {
		enforcer, err = auth.NewEnforcer(a.cfg.Auth.CasbinModelPath, a.cfg.Auth.CasbinPolicyPath)
		if err != nil {
			return fmt.Errorf("build policy enforcer: %w", err)
		}
	}
	permission, err := auth.NewPermission(factory, enforcer)
	if err != nil {
		return fmt.Errorf("build permission: %w", err)
	}

	// HTTP API.
	handlerCfg := api.HandlerConfig{
		Queries:       queries,
		Permission:    permission,
		Registry:      reg,
		EnabledEvents: a.cfg.Stats.EnabledEvents,
		SearchHealth: func(ctx context.Context) bool {
			return engine.Ping(ctx) == nil
		},
		Version: version,
	}
	if publisher != nil && a.cfg.Stats.RegisterReceivers {
		handlerCfg.Publisher = publisher
	} else if publisher != nil {
		a.logger.Info().Msg("Event receivers disabled; not serving POST /events")
	}
	if streams != nil {
		handlerCfg.BusHealth = streams.IsHealthy
	}
	router := api.NewRouter(api.RouterConfig{
		Handler:           api.NewHandler(handlerCfg),
		Verifier:          verifier,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		RateLimitRequests: a.cfg.Server.RateLimitReqs,
		RateLimitWindow:   a.cfg.Server.RateLimitWindow,
		RateLimitDisabled: a.cfg.Server.RateLimitDisabled,
	})
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.Timeout,
		WriteTimeout: a.cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("build supervisor tree: %w", err)
	}

	if busServer != nil {
		tree.AddMessagingService(services.NewBusServerService(busServer, shutdownTimeout))
	}
	if streams != nil {
		consumers := append(eventTypeNames(defs), eventbus.TaskToken)
		tree.AddMessagingService(services.NewStreamKeeperService(streams, consumers, a.logger))
	}

	if a.cfg.Scheduler.Enabled {
		if len(indexers) > 0 {
			scheduled := make([]services.EventIndexer, len(indexers))
			for i, ix := range indexers {
				scheduled[i] = ix
			}
			tree.AddPipelineService(services.NewIndexerScheduler(scheduled, a.cfg.Scheduler.IndexerInterval, a.logger))
		}
		if len(aggregators) > 0 {
			rollups := make([]services.Rollup, len(aggregators))
			for i, agg := range aggregators {
				rollups[i] = agg
			}
			tree.AddPipelineService(services.NewAggregationScheduler(rollups, a.cfg.Scheduler.AggregationInterval, a.logger))
		}
	} else {
		a.logger.Info().Msg("Scheduler disabled; pipeline runs only on dispatched tasks")
	}
	if consumer != nil {
		runner := tasks.NewRunner(consumer, &pipelineExecutor{
			indexers:    indexersByName(indexers),
			aggregators: aggregatorsByName(aggregators),
			logger:      a.logger,
		}, a.logger)
		tree.AddPipelineService(services.NewTaskRunnerService(runner, 0, a.logger))
	}

	tree.AddAPIService(services.NewHTTPServerService(httpServer, shutdownTimeout))
	a.logger.Info().
		Str("addr", httpServer.Addr).
		Strs("event_types", eventTypeNames(defs)).
		Strs("aggregations", aggregationNames(aggCfgs)).
		Int("queries", len(queries)).
		Msg("Supervisor tree assembled")

	// Run until a signal or a fatal supervisor error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			a.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Err(err).Msg("Supervisor tree failed")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		a.logger.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
	}

	a.logger.Info().Msg("Statflow stopped")
	return nil
}

// pipelineExecutor runs dispatched tasks against the daemon's own
// indexers and aggregators, the same instances the schedulers drive.
type pipelineExecutor struct {
	indexers    map[string]*indexer.Indexer
	aggregators map[string]*aggregator.Aggregator
	logger      zerolog.Logger
}

func (e *pipelineExecutor) ProcessEvents(ctx context.Context, eventTypes []string) error {
	names := eventTypes
	if len(names) == 0 {
		names = sortedKeys(e.indexers)
	}
	var errs []error
	for _, name := range names {
		ix, ok := e.indexers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("no indexer for event type %q", name))
			continue
		}
		indexed, failed, err := ix.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", name, err))
			continue
		}
		e.logger.Info().
			Str("event_type", name).
			Int("indexed", indexed).
			Int("failed", failed).
			Msg("Task indexed events")
	}
	return errors.Join(errs...)
}

func (e *pipelineExecutor) AggregateEvents(ctx context.Context, params tasks.AggregateParams) error {
	names := params.Aggregations
	if len(names) == 0 {
		names = sortedKeys(e.aggregators)
	}
	run := aggregator.RunParams{UpdateBookmark: params.UpdateBookmark}
	if params.Start != nil {
		run.Start = *params.Start
	}
	if params.End != nil {
		run.End = *params.End
	}
	var errs []error
	for _, name := range names {
		agg, ok := e.aggregators[name]
		if !ok {
			errs = append(errs, fmt.Errorf("no aggregator named %q", name))
			continue
		}
		res, err := agg.Run(ctx, run)
		if err != nil {
			errs = append(errs, fmt.Errorf("aggregate %s: %w", name, err))
			continue
		}
		e.logger.Info().
			Str("aggregation", name).
			Int("written", res.Written).
			Msg("Task aggregated events")
	}
	return errors.Join(errs...)
}

func indexersByName(ixs []*indexer.Indexer) map[string]*indexer.Indexer {
	m := make(map[string]*indexer.Indexer, len(ixs))
	for _, ix := range ixs {
		m[ix.EventType()] = ix
	}
	return m
}

func aggregatorsByName(aggs []*aggregator.Aggregator) map[string]*aggregator.Aggregator {
	m := make(map[string]*aggregator.Aggregator, len(aggs))
	for _, agg := range aggs {
		m[agg.Name()] = agg
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
