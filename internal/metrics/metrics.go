// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the telemetry pipeline:
// - Event bus publish/consume throughput
// - Indexer batch flushes and bulk errors
// - Aggregator runs, rollup docs and bookmark progression
// - Query engine latency
// - HTTP API latency and throughput

var (
	// Event Bus Metrics
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"event_type"},
	)

	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_publish_errors_total",
			Help: "Total number of event publish failures",
		},
		[]string{"event_type"},
	)

	BusEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_consumed_total",
			Help: "Total number of events consumed from the bus",
		},
		[]string{"event_type"},
	)

	BusEventsRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_requeued_total",
			Help: "Total number of events returned to the queue after a failed batch",
		},
		[]string{"event_type"},
	)

	BusDecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_decode_failures_total",
			Help: "Total number of bus payloads that failed to decode",
		},
		[]string{"event_type"},
	)

	BusConsumerLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bus_consumer_lag",
			Help: "Number of pending messages for a durable consumer",
		},
		[]string{"event_type"},
	)

	// Indexer Metrics
	IndexerEventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_indexed_total",
			Help: "Total number of events written to raw event indices",
		},
		[]string{"event_type"},
	)

	IndexerEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_dropped_total",
			Help: "Total number of events dropped by the preprocessor chain",
		},
		[]string{"event_type"},
	)

	IndexerBulkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_bulk_errors_total",
			Help: "Total number of bulk indexing item failures",
		},
		[]string{"event_type"},
	)

	IndexerFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_flush_duration_seconds",
			Help:    "Duration of indexer batch flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexerBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_batch_size",
			Help:    "Number of events in each indexer flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Aggregator Metrics
	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_runs_total",
			Help: "Total number of aggregation runs",
		},
		[]string{"aggregation", "result"}, // result: "success", "failure", "skipped"
	)

	AggregationRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_run_duration_seconds",
			Help:    "Duration of aggregation runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"aggregation"},
	)

	AggregationDocsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_docs_written_total",
			Help: "Total number of rollup documents written",
		},
		[]string{"aggregation"},
	)

	AggregationBucketsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_buckets_skipped_total",
			Help: "Total number of interval buckets skipped because no events changed",
		},
		[]string{"aggregation"},
	)

	AggregationLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregation_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per aggregation",
		},
		[]string{"aggregation"},
	)

	BookmarksWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmarks_written_total",
			Help: "Total number of bookmark documents written",
		},
		[]string{"aggregation"},
	)

	// Query Engine Metrics
	QueryExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_executions_total",
			Help: "Total number of statistics query executions",
		},
		[]string{"query", "result"}, // result: "success", "failure", "denied"
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Duration of statistics queries in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"query"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Receiver Metrics
	ReceiverEventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiver_events_accepted_total",
			Help: "Total number of events accepted by the HTTP receiver",
		},
		[]string{"event_type"},
	)

	ReceiverEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiver_events_rejected_total",
			Help: "Total number of events rejected by the HTTP receiver",
		},
		[]string{"event_type", "reason"}, // reason: "unknown_type", "invalid_payload", "disabled"
	)

	// Task Runner Metrics
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_dispatched_total",
			Help: "Total number of background tasks dispatched",
		},
		[]string{"task"},
	)

	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_executed_total",
			Help: "Total number of background tasks executed",
		},
		[]string{"task", "result"}, // result: "success", "failure"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEventsPublished records events published to the bus
func RecordEventsPublished(eventType string, count int) {
	BusEventsPublished.WithLabelValues(eventType).Add(float64(count))
}

// RecordPublishError records a failed publish
func RecordPublishError(eventType string) {
	BusPublishErrors.WithLabelValues(eventType).Inc()
}

// RecordEventsConsumed records events drained from the bus
func RecordEventsConsumed(eventType string, count int) {
	BusEventsConsumed.WithLabelValues(eventType).Add(float64(count))
}

// RecordIndexerFlush records a completed indexer flush
func RecordIndexerFlush(eventType string, indexed, dropped int, duration time.Duration) {
	IndexerEventsIndexed.WithLabelValues(eventType).Add(float64(indexed))
	IndexerEventsDropped.WithLabelValues(eventType).Add(float64(dropped))
	IndexerFlushDuration.Observe(duration.Seconds())
	IndexerBatchSize.Observe(float64(indexed))
}

// RecordAggregationRun records the outcome of an aggregation run
func RecordAggregationRun(aggregation string, duration time.Duration, docsWritten int, err error) {
	AggregationRunDuration.WithLabelValues(aggregation).Observe(duration.Seconds())
	if err != nil {
		AggregationRuns.WithLabelValues(aggregation, "failure").Inc()
		return
	}
	AggregationRuns.WithLabelValues(aggregation, "success").Inc()
	AggregationDocsWritten.WithLabelValues(aggregation).Add(float64(docsWritten))
	AggregationLastSuccess.WithLabelValues(aggregation).Set(float64(time.Now().Unix()))
}

// RecordQuery records a statistics query execution
func RecordQuery(query string, duration time.Duration, err error) {
	QueryDuration.WithLabelValues(query).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	QueryExecutions.WithLabelValues(query, result).Inc()
}

// RecordQueryDenied records a query rejected by the permission factory
func RecordQueryDenied(query string) {
	QueryExecutions.WithLabelValues(query, "denied").Inc()
}

// RecordTaskDispatch records a background task dispatch
func RecordTaskDispatch(task string) {
	TasksDispatched.WithLabelValues(task).Inc()
}

// RecordTaskExecution records a background task execution and its outcome
func RecordTaskExecution(task string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	TasksExecuted.WithLabelValues(task, result).Inc()
}

// RecordCircuitBreakerTransition records a circuit breaker state change
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
}

func stateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
