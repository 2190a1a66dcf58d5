// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"statflow.yaml",
	"statflow.yml",
	"/etc/statflow/statflow.yaml",
	"/etc/statflow/statflow.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              5080,
			Timeout:           30 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/statflow/jetstream",
			Exchange:       "events",
			FetchBatchSize: 500,
			FetchTimeout:   2 * time.Second,
			PublishTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			Addresses:       []string{"http://localhost:9200"},
			Username:        "",
			Password:        "",
			IndexPrefix:     "",
			BulkChunkSize:   50,
			BulkThrottleRPS: 0,
			MaxBucketSize:   10000,
			RequestTimeout:  30 * time.Second,
		},
		Anonymization: AnonymizationConfig{
			SaltMode:          "random",
			SaltSecret:        "",
			SaltDir:           "/data/statflow/salts",
			RobotsFile:        "",
			MachinesFile:      "",
			GeoDBPath:         "",
			DoubleClickWindow: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:              "none",
			JWTSecret:         "",
			PermissionFactory: "allow-all",
			CasbinModelPath:   "",
			CasbinPolicyPath:  "",
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			IndexerInterval:     30 * time.Second,
			AggregationInterval: 1 * time.Hour,
		},
		Stats: StatsConfig{
			RegisterReceivers:       true,
			EnabledEvents:           []string{},
			EnabledAggregations:     []string{},
			EnabledQueries:          []string{},
			BookmarkRefreshInterval: 1 * time.Minute,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// SEARCH_INDEX_PREFIX -> search.index_prefix
	// STATS_MQ_EXCHANGE   -> nats.exchange
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"search.addresses",
	"stats.enabled_events",
	"stats.enabled_aggregations",
	"stats.enabled_queries",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - SEARCH_INDEX_PREFIX -> search.index_prefix
//   - STATS_MQ_EXCHANGE -> nats.exchange
//   - STATS_PERMISSION_FACTORY -> auth.permission_factory
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"environment":         "server.environment",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Event bus mappings
		"nats_enabled":          "nats.enabled",
		"nats_url":              "nats.url",
		"nats_embedded":         "nats.embedded_server",
		"nats_store_dir":        "nats.store_dir",
		"stats_mq_exchange":     "nats.exchange",
		"nats_fetch_batch_size": "nats.fetch_batch_size",
		"nats_fetch_timeout":    "nats.fetch_timeout",
		"nats_publish_timeout":  "nats.publish_timeout",

		// Search mappings
		"search_url":               "search.addresses",
		"search_username":          "search.username",
		"search_password":          "search.password",
		"search_index_prefix":      "search.index_prefix",
		"search_bulk_chunk_size":   "search.bulk_chunk_size",
		"search_bulk_throttle_rps": "search.bulk_throttle_rps",
		"search_max_bucket_size":   "search.max_bucket_size",
		"search_request_timeout":   "search.request_timeout",

		// Anonymization mappings
		"salt_mode":           "anonymization.salt_mode",
		"salt_secret":         "anonymization.salt_secret",
		"salt_dir":            "anonymization.salt_dir",
		"robots_file":         "anonymization.robots_file",
		"machines_file":       "anonymization.machines_file",
		"geo_db_path":         "anonymization.geo_db_path",
		"double_click_window": "anonymization.double_click_window",

		// Auth mappings
		"auth_mode":                "auth.mode",
		"jwt_secret":               "auth.jwt_secret",
		"stats_permission_factory": "auth.permission_factory",
		"casbin_model_path":        "auth.casbin_model_path",
		"casbin_policy_path":       "auth.casbin_policy_path",

		// Scheduler mappings
		"scheduler_enabled":    "scheduler.enabled",
		"indexer_interval":     "scheduler.indexer_interval",
		"aggregation_interval": "scheduler.aggregation_interval",

		// Stats registry mappings
		"stats_register_receivers":  "stats.register_receivers",
		"stats_events":              "stats.enabled_events",
		"stats_aggregations":        "stats.enabled_aggregations",
		"stats_queries":             "stats.enabled_queries",
		"bookmark_refresh_interval": "stats.bookmark_refresh_interval",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// Note: The caller is responsible for mutex protection when accessing
// configuration during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
