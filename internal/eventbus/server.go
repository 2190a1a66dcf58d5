// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/statflow/statflow/internal/config"
)

const serverStartTimeout = 30 * time.Second

// EmbeddedServer wraps the NATS server with lifecycle management.
// It provides a self-contained JetStream instance for single-node
// deployments and tests, listening on the address the configured URL
// points at.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server with
// JetStream enabled. A URL port of 0 selects a random free port; the actual
// address is available through ClientURL. Returns an error if the server
// fails to start within 30 seconds.
func NewEmbeddedServer(cfg *config.NATSConfig) (*EmbeddedServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nats config required")
	}

	host, port := listenAddress(cfg.URL)
	opts := &server.Options{
		ServerName:         "statflow-events",
		Host:               host,
		Port:               port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: 1 << 30,  // 1GB
		JetStreamMaxStore:  10 << 30, // 10GB
		MaxPayload:         8 * 1024 * 1024,
		// Broker internals stay quiet; bus activity is logged by statflow.
		NoLog: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(serverStartTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown gracefully stops the server, waiting for completion or context
// cancellation.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// IsRunning returns server health status.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// listenAddress extracts host and port from a NATS URL. Unparseable values
// fall back to localhost defaults; port 0 maps to a random port.
func listenAddress(rawURL string) (string, int) {
	host, port := "127.0.0.1", 4222

	u, err := url.Parse(rawURL)
	if err != nil {
		return host, port
	}
	if h := u.Hostname(); h != "" {
		host = h
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			if n == 0 {
				n = server.RANDOM_PORT
			}
			port = n
		}
	}
	return host, port
}
