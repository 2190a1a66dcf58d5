// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()

	if cfg.Server.Port != 5080 {
		t.Errorf("expected default port 5080, got %d", cfg.Server.Port)
	}
	if cfg.NATS.Exchange != "events" {
		t.Errorf("expected default exchange 'events', got %q", cfg.NATS.Exchange)
	}
	if cfg.Search.BulkChunkSize != 50 {
		t.Errorf("expected default bulk chunk size 50, got %d", cfg.Search.BulkChunkSize)
	}
	if cfg.Search.MaxBucketSize != 10000 {
		t.Errorf("expected default max bucket size 10000, got %d", cfg.Search.MaxBucketSize)
	}
	if cfg.Anonymization.DoubleClickWindow != 10*time.Second {
		t.Errorf("expected default double click window 10s, got %v", cfg.Anonymization.DoubleClickWindow)
	}
	if cfg.Stats.BookmarkRefreshInterval != time.Minute {
		t.Errorf("expected default bookmark refresh interval 1m, got %v", cfg.Stats.BookmarkRefreshInterval)
	}
	if !cfg.Stats.RegisterReceivers {
		t.Error("expected receivers to be registered by default")
	}
}

func TestValidateServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.Server.Environment = "staging" },
			wantErr: "ENVIRONMENT",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Server.RateLimitReqs = 0 },
			wantErr: "RATE_LIMIT_REQUESTS",
		},
		{
			name: "rate limit ignored when disabled",
			mutate: func(c *Config) {
				c.Server.RateLimitDisabled = true
				c.Server.RateLimitReqs = 0
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateNATS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing URL",
			mutate:  func(c *Config) { c.NATS.URL = "" },
			wantErr: "NATS_URL",
		},
		{
			name:    "http scheme rejected",
			mutate:  func(c *Config) { c.NATS.URL = "http://localhost:4222" },
			wantErr: "NATS_URL",
		},
		{
			name:    "empty exchange",
			mutate:  func(c *Config) { c.NATS.Exchange = "" },
			wantErr: "STATS_MQ_EXCHANGE",
		},
		{
			name:    "exchange with wildcard",
			mutate:  func(c *Config) { c.NATS.Exchange = "events.*" },
			wantErr: "STATS_MQ_EXCHANGE",
		},
		{
			name: "embedded server requires store dir",
			mutate: func(c *Config) {
				c.NATS.EmbeddedServer = true
				c.NATS.StoreDir = ""
			},
			wantErr: "NATS_STORE_DIR",
		},
		{
			name: "disabled bus skips validation",
			mutate: func(c *Config) {
				c.NATS.Enabled = false
				c.NATS.URL = ""
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSearch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no addresses",
			mutate:  func(c *Config) { c.Search.Addresses = nil },
			wantErr: "SEARCH_URL",
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.Search.Addresses = []string{"ftp://search:9200"} },
			wantErr: "SEARCH_URL",
		},
		{
			name:    "uppercase prefix",
			mutate:  func(c *Config) { c.Search.IndexPrefix = "Prod-" },
			wantErr: "SEARCH_INDEX_PREFIX",
		},
		{
			name:    "prefix with wildcard",
			mutate:  func(c *Config) { c.Search.IndexPrefix = "prod*" },
			wantErr: "SEARCH_INDEX_PREFIX",
		},
		{
			name:    "valid prefix",
			mutate:  func(c *Config) { c.Search.IndexPrefix = "prod-" },
			wantErr: "",
		},
		{
			name:    "zero bulk chunk",
			mutate:  func(c *Config) { c.Search.BulkChunkSize = 0 },
			wantErr: "SEARCH_BULK_CHUNK_SIZE",
		},
		{
			name:    "bucket size over cap",
			mutate:  func(c *Config) { c.Search.MaxBucketSize = 100000 },
			wantErr: "SEARCH_MAX_BUCKET_SIZE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAnonymization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown salt mode",
			mutate:  func(c *Config) { c.Anonymization.SaltMode = "static" },
			wantErr: "SALT_MODE",
		},
		{
			name: "derived without secret",
			mutate: func(c *Config) {
				c.Anonymization.SaltMode = "derived"
				c.Anonymization.SaltSecret = ""
			},
			wantErr: "SALT_SECRET",
		},
		{
			name: "derived with short secret",
			mutate: func(c *Config) {
				c.Anonymization.SaltMode = "derived"
				c.Anonymization.SaltSecret = "short"
			},
			wantErr: "SALT_SECRET",
		},
		{
			name: "derived with good secret",
			mutate: func(c *Config) {
				c.Anonymization.SaltMode = "derived"
				c.Anonymization.SaltSecret = "a-sufficiently-long-secret"
			},
			wantErr: "",
		},
		{
			name: "random without dir",
			mutate: func(c *Config) {
				c.Anonymization.SaltDir = ""
			},
			wantErr: "SALT_DIR",
		},
		{
			name:    "negative double click window",
			mutate:  func(c *Config) { c.Anonymization.DoubleClickWindow = -time.Second },
			wantErr: "DOUBLE_CLICK_WINDOW",
		},
		{
			name:    "zero double click window disables dedup",
			mutate:  func(c *Config) { c.Anonymization.DoubleClickWindow = 0 },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Auth.Mode = "basic" },
			wantErr: "AUTH_MODE",
		},
		{
			name: "jwt mode without secret",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = ""
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "jwt mode with short secret",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = "too-short"
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "authenticated factory requires jwt",
			mutate: func(c *Config) {
				c.Auth.PermissionFactory = "authenticated"
			},
			wantErr: "STATS_PERMISSION_FACTORY",
		},
		{
			name: "casbin factory requires jwt",
			mutate: func(c *Config) {
				c.Auth.PermissionFactory = "casbin"
			},
			wantErr: "STATS_PERMISSION_FACTORY",
		},
		{
			name: "casbin without paths uses embedded defaults",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = strings.Repeat("s", 32)
				c.Auth.PermissionFactory = "casbin"
			},
			wantErr: "",
		},
		{
			name: "unknown factory",
			mutate: func(c *Config) {
				c.Auth.PermissionFactory = "rbac"
			},
			wantErr: "STATS_PERMISSION_FACTORY",
		},
		{
			name: "full jwt with casbin",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = strings.Repeat("s", 32)
				c.Auth.PermissionFactory = "casbin"
				c.Auth.CasbinModelPath = "/etc/statflow/model.conf"
				c.Auth.CasbinPolicyPath = "/etc/statflow/policy.csv"
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateLogging(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Errorf("expected LOG_LEVEL error, got: %v", err)
	}

	cfg = defaultConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_FORMAT") {
		t.Errorf("expected LOG_FORMAT error, got: %v", err)
	}
}
