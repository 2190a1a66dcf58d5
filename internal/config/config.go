// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package config

import (
	"time"
)

// Config holds all application configuration loaded from environment variables and config files.
// Provides centralized configuration management for the telemetry pipeline: the event bus,
// the search cluster, anonymization, scheduling, authentication and the HTTP API.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (statflow.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from multiple goroutines.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	NATS          NATSConfig          `koanf:"nats"`
	Search        SearchConfig        `koanf:"search"`
	Anonymization AnonymizationConfig `koanf:"anonymization"`
	Auth          AuthConfig          `koanf:"auth"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Stats         StatsConfig         `koanf:"stats"`
}

// ServerConfig holds HTTP server settings for the statistics API.
//
// Environment Variables:
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_PORT: Listen port (default: 5080)
//   - HTTP_TIMEOUT: Request timeout (default: 30s)
//   - ENVIRONMENT: "development" or "production" (default: development)
//   - CORS_ORIGINS: Comma-separated list of allowed origins (default: *)
//   - RATE_LIMIT_REQUESTS: Requests per window per client (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: Turn off rate limiting entirely (default: false)
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	Environment       string        `koanf:"environment"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig holds event bus settings. Events flow through a JetStream stream
// (one subject per event type) and are drained by durable pull consumers.
//
// The exchange name doubles as the JetStream stream name; subjects are derived
// from it as "<exchange>.<event-type>" and durable consumers as "stats-<event-type>".
//
// Environment Variables:
//   - NATS_ENABLED: Enable the event bus (default: true)
//   - NATS_URL: Server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: Run an embedded JetStream server (default: false)
//   - NATS_STORE_DIR: Storage directory for the embedded server
//   - STATS_MQ_EXCHANGE: Stream name for usage events (default: events)
//   - NATS_FETCH_BATCH_SIZE: Max messages per consumer fetch (default: 500)
//   - NATS_FETCH_TIMEOUT: Wait time for a fetch batch (default: 2s)
//   - NATS_PUBLISH_TIMEOUT: Publish confirmation timeout (default: 10s)
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	Exchange       string        `koanf:"exchange"`
	FetchBatchSize int           `koanf:"fetch_batch_size"`
	FetchTimeout   time.Duration `koanf:"fetch_timeout"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// SearchConfig holds search cluster connection and indexing settings.
// Raw events land in daily indices, rollups in monthly indices; both are
// resolved through aliases so readers never reference dated index names.
//
// Environment Variables:
//   - SEARCH_URL: Comma-separated cluster node URLs (default: http://localhost:9200)
//   - SEARCH_USERNAME / SEARCH_PASSWORD: Basic auth credentials (optional)
//   - SEARCH_INDEX_PREFIX: Prefix for every index, alias and template (default: "")
//   - SEARCH_BULK_CHUNK_SIZE: Documents per bulk request (default: 50)
//   - SEARCH_BULK_THROTTLE_RPS: Bulk requests per second, 0 = unlimited (default: 0)
//   - SEARCH_MAX_BUCKET_SIZE: Terms aggregation page size cap (default: 10000)
//   - SEARCH_REQUEST_TIMEOUT: Per-request timeout (default: 30s)
type SearchConfig struct {
	Addresses       []string      `koanf:"addresses"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	IndexPrefix     string        `koanf:"index_prefix"`
	BulkChunkSize   int           `koanf:"bulk_chunk_size"`
	BulkThrottleRPS float64       `koanf:"bulk_throttle_rps"`
	MaxBucketSize   int           `koanf:"max_bucket_size"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

// AnonymizationConfig holds settings for visitor identity hashing.
// Raw events never store IPs or user agents; they are folded into salted
// SHA-224 digests before indexing. The salt rotates daily.
//
// Salt modes:
//   - "random": 32 random bytes per day, persisted in a local Badger store
//     so restarts within the same day reuse the same salt.
//   - "derived": salt derived from a configured secret via HKDF, so multiple
//     ingest nodes agree on the daily salt without shared storage.
//
// Environment Variables:
//   - SALT_MODE: random or derived (default: random)
//   - SALT_SECRET: Root secret for derived mode (required when derived)
//   - SALT_DIR: Badger directory for random mode (default: /data/statflow/salts)
//   - ROBOTS_FILE: Extra robot user-agent patterns, one regexp per line (optional)
//   - MACHINES_FILE: Extra machine user-agent patterns (optional)
//   - GEO_DB_PATH: CSV file mapping CIDR ranges to country codes (optional)
//   - DOUBLE_CLICK_WINDOW: Dedup window for repeated events (default: 10s, 0 disables)
type AnonymizationConfig struct {
	SaltMode          string        `koanf:"salt_mode"`
	SaltSecret        string        `koanf:"salt_secret"`
	SaltDir           string        `koanf:"salt_dir"`
	RobotsFile        string        `koanf:"robots_file"`
	MachinesFile      string        `koanf:"machines_file"`
	GeoDBPath         string        `koanf:"geo_db_path"`
	DoubleClickWindow time.Duration `koanf:"double_click_window"`
}

// AuthConfig holds API authentication and query authorization settings.
//
// Mode "none" disables authentication; "jwt" requires a bearer token signed
// with the configured secret. Independent of authentication, the permission
// factory decides per-query access:
//   - "allow-all": every authenticated or anonymous caller may run queries
//   - "authenticated": any valid token may run queries
//   - "casbin": consult a Casbin policy keyed by (subject, query name)
//
// Environment Variables:
//   - AUTH_MODE: none or jwt (default: none)
//   - JWT_SECRET: HMAC signing secret (required when AUTH_MODE=jwt)
//   - STATS_PERMISSION_FACTORY: allow-all, authenticated or casbin (default: allow-all)
//   - CASBIN_MODEL_PATH / CASBIN_POLICY_PATH: Policy files for the casbin
//     factory; unset paths use the embedded defaults
type AuthConfig struct {
	Mode              string `koanf:"mode"`
	JWTSecret         string `koanf:"jwt_secret"`
	PermissionFactory string `koanf:"permission_factory"`
	CasbinModelPath   string `koanf:"casbin_model_path"`
	CasbinPolicyPath  string `koanf:"casbin_policy_path"`
}

// SchedulerConfig holds background processing intervals for the serve daemon.
//
// Environment Variables:
//   - SCHEDULER_ENABLED: Run periodic indexing and aggregation (default: true)
//   - INDEXER_INTERVAL: How often queued events are drained and indexed (default: 30s)
//   - AGGREGATION_INTERVAL: How often aggregations are advanced (default: 1h)
type SchedulerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	IndexerInterval     time.Duration `koanf:"indexer_interval"`
	AggregationInterval time.Duration `koanf:"aggregation_interval"`
}

// StatsConfig holds registry toggles for events, aggregations and queries.
//
// The enabled_* lists restrict the built-in registrations to a subset; an
// empty list enables everything that is registered. Receivers gate the HTTP
// event submission endpoint.
//
// Environment Variables:
//   - STATS_REGISTER_RECEIVERS: Expose POST /events/{type} (default: true)
//   - STATS_EVENTS: Comma-separated subset of event types to enable
//   - STATS_AGGREGATIONS: Comma-separated subset of aggregations to enable
//   - STATS_QUERIES: Comma-separated subset of queries to enable
//   - BOOKMARK_REFRESH_INTERVAL: Safety margin subtracted when reading bookmarks (default: 1m)
type StatsConfig struct {
	RegisterReceivers       bool          `koanf:"register_receivers"`
	EnabledEvents           []string      `koanf:"enabled_events"`
	EnabledAggregations     []string      `koanf:"enabled_aggregations"`
	EnabledQueries          []string      `koanf:"enabled_queries"`
	BookmarkRefreshInterval time.Duration `koanf:"bookmark_refresh_interval"`
}
