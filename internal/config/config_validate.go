// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateSearch(); err != nil {
		return err
	}

	if err := c.validateAnonymization(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateScheduler(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates the HTTP server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	env := strings.ToLower(c.Server.Environment)
	if env != "development" && env != "production" && env != "test" {
		return fmt.Errorf("ENVIRONMENT must be development, production or test, got: %s", c.Server.Environment)
	}

	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}

	return nil
}

// validateNATS validates the event bus configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}

	if c.NATS.Exchange == "" {
		return fmt.Errorf("STATS_MQ_EXCHANGE must not be empty")
	}
	if strings.ContainsAny(c.NATS.Exchange, ".*> ") {
		return fmt.Errorf("STATS_MQ_EXCHANGE must not contain '.', '*', '>' or spaces, got: %s", c.NATS.Exchange)
	}

	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}

	if c.NATS.FetchBatchSize < 1 {
		return fmt.Errorf("NATS_FETCH_BATCH_SIZE must be at least 1")
	}
	if c.NATS.FetchTimeout <= 0 {
		return fmt.Errorf("NATS_FETCH_TIMEOUT must be positive")
	}

	return nil
}

// validateSearch validates the search cluster configuration
func (c *Config) validateSearch() error {
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("SEARCH_URL must list at least one cluster node")
	}
	for _, addr := range c.Search.Addresses {
		if err := validateHTTPURL(addr, "SEARCH_URL"); err != nil {
			return err
		}
	}

	if err := validateIndexPrefix(c.Search.IndexPrefix); err != nil {
		return err
	}

	if c.Search.BulkChunkSize < 1 {
		return fmt.Errorf("SEARCH_BULK_CHUNK_SIZE must be at least 1")
	}
	if c.Search.BulkThrottleRPS < 0 {
		return fmt.Errorf("SEARCH_BULK_THROTTLE_RPS must not be negative")
	}
	if c.Search.MaxBucketSize < 1 || c.Search.MaxBucketSize > 65536 {
		return fmt.Errorf("SEARCH_MAX_BUCKET_SIZE must be between 1 and 65536, got %d", c.Search.MaxBucketSize)
	}
	if c.Search.RequestTimeout <= 0 {
		return fmt.Errorf("SEARCH_REQUEST_TIMEOUT must be positive")
	}

	return nil
}

// validateIndexPrefix rejects prefixes that would produce invalid index names.
// Search indices must be lowercase and free of path or wildcard characters.
func validateIndexPrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if strings.ToLower(prefix) != prefix {
		return fmt.Errorf("SEARCH_INDEX_PREFIX must be lowercase, got: %s", prefix)
	}
	if strings.ContainsAny(prefix, `/\*?"<>| ,#`) {
		return fmt.Errorf("SEARCH_INDEX_PREFIX contains invalid characters: %s", prefix)
	}
	return nil
}

// validateAnonymization validates visitor hashing configuration
func (c *Config) validateAnonymization() error {
	mode := strings.ToLower(c.Anonymization.SaltMode)
	switch mode {
	case "random":
		if c.Anonymization.SaltDir == "" {
			return fmt.Errorf("SALT_DIR is required when SALT_MODE=random")
		}
	case "derived":
		if len(c.Anonymization.SaltSecret) < 16 {
			return fmt.Errorf("SALT_SECRET must be at least 16 characters when SALT_MODE=derived")
		}
	default:
		return fmt.Errorf("SALT_MODE must be random or derived, got: %s", c.Anonymization.SaltMode)
	}

	if c.Anonymization.DoubleClickWindow < 0 {
		return fmt.Errorf("DOUBLE_CLICK_WINDOW must not be negative")
	}

	return nil
}

// validateAuth validates authentication and permission factory configuration
func (c *Config) validateAuth() error {
	mode := strings.ToLower(c.Auth.Mode)
	if mode != "none" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be none or jwt, got: %s", c.Auth.Mode)
	}

	if mode == "jwt" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
	}

	factory := strings.ToLower(c.Auth.PermissionFactory)
	switch factory {
	case "allow-all":
	case "authenticated":
		if mode == "none" {
			return fmt.Errorf("STATS_PERMISSION_FACTORY=authenticated requires AUTH_MODE=jwt")
		}
	case "casbin":
		// Unset model/policy paths are fine: the enforcer ships embedded
		// defaults. Without verified identities casbin has no subject to
		// check, so the factory needs jwt mode like authenticated does.
		if mode == "none" {
			return fmt.Errorf("STATS_PERMISSION_FACTORY=casbin requires AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("STATS_PERMISSION_FACTORY must be allow-all, authenticated or casbin, got: %s", c.Auth.PermissionFactory)
	}

	return nil
}

// validateScheduler validates background processing configuration
func (c *Config) validateScheduler() error {
	if !c.Scheduler.Enabled {
		return nil
	}

	if c.Scheduler.IndexerInterval <= 0 {
		return fmt.Errorf("INDEXER_INTERVAL must be positive")
	}
	if c.Scheduler.AggregationInterval <= 0 {
		return fmt.Errorf("AGGREGATION_INTERVAL must be positive")
	}

	return nil
}

// validateLogging validates log output configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "warning": true, "error": true,
		"fatal": true, "panic": true, "disabled": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL is invalid: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}

	return nil
}
