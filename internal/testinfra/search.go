// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/statflow/statflow/internal/config"
)

const (
	// DefaultSearchImage is the single-node cluster image integration
	// tests run against. Keep the major version in step with the client
	// in go.mod.
	DefaultSearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.14.3"

	searchPort = "9200"
)

// SearchCluster is a running single-node search cluster for tests.
type SearchCluster struct {
	testcontainers.Container
	URL string
}

// SearchOption configures the cluster container.
type SearchOption func(*searchConfig)

type searchConfig struct {
	image        string
	heap         string
	startTimeout time.Duration
}

// WithSearchImage overrides the cluster image, e.g. to test against a
// different minor version.
func WithSearchImage(image string) SearchOption {
	return func(c *searchConfig) {
		c.image = image
	}
}

// WithHeap sets the JVM heap, e.g. "1g". The default keeps CI runners
// with little memory alive.
func WithHeap(heap string) SearchOption {
	return func(c *searchConfig) {
		c.heap = heap
	}
}

// WithSearchStartTimeout bounds the wait for the cluster to report
// itself healthy.
func WithSearchStartTimeout(timeout time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.startTimeout = timeout
	}
}

// NewSearchCluster starts a single-node cluster with security disabled
// and waits until it answers on the HTTP port.
func NewSearchCluster(ctx context.Context, opts ...SearchOption) (*SearchCluster, error) {
	cfg := &searchConfig{
		image:        DefaultSearchImage,
		heap:         "512m",
		startTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{searchPort + "/tcp"},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"action.auto_create_index": "true",
			"ES_JAVA_OPTS":           fmt.Sprintf("-Xms%s -Xmx%s", cfg.heap, cfg.heap),
		},
		WaitingFor: wait.ForHTTP("/_cluster/health").
			WithPort(searchPort + "/tcp").
			WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start search container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, searchPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mapped port: %w", err)
	}

	return &SearchCluster{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, port.Port()),
	}, nil
}

// Config returns search settings pointing at the cluster. The short
// request timeout keeps a wedged cluster from stalling the suite.
func (c *SearchCluster) Config() *config.SearchConfig {
	return &config.SearchConfig{
		Addresses:      []string{c.URL},
		MaxBucketSize:  10000,
		RequestTimeout: 15 * time.Second,
	}
}

// Terminate stops and removes the cluster container.
func (c *SearchCluster) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}
