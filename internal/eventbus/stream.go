// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/config"
)

const (
	streamMaxAge    = 7 * 24 * time.Hour
	dedupWindow     = 2 * time.Minute
	consumerAckWait = 30 * time.Second
	maxDeliver      = 5
	maxAckPending   = 1000
)

// JetStreamContext defines the subset of jetstream.JetStream used for stream
// and consumer management. This interface allows for testing with mock
// implementations.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	DeleteStream(ctx context.Context, name string) error
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
	DeleteConsumer(ctx context.Context, stream string, consumer string) error
}

// Connect opens a NATS connection with reconnection handling and returns a
// JetStream context for stream and consumer management.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Connect(cfg *config.NATSConfig, logger zerolog.Logger) (*natsgo.Conn, jetstream.JetStream, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("nats config required")
	}

	nc, err := natsgo.Connect(cfg.URL, connectOptions(logger)...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}

// StreamManager handles JetStream stream and consumer lifecycle.
// It ensures the stream exists with the correct configuration before
// publishers and consumers start, and backs the queue admin commands
// (declare, purge, delete).
type StreamManager struct {
	js       JetStreamContext
	exchange string
}

// NewStreamManager creates a stream manager for the configured exchange.
func NewStreamManager(js JetStreamContext, cfg *config.NATSConfig) (*StreamManager, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("nats config required")
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	return &StreamManager{js: js, exchange: exchange}, nil
}

// Exchange returns the managed stream name.
func (m *StreamManager) Exchange() string {
	return m.exchange
}

func (m *StreamManager) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        m.exchange,
		Subjects:    StreamSubjects(m.exchange),
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamMaxAge,
		MaxBytes:    -1,
		MaxMsgs:     -1,
		Duplicates:  dedupWindow,
		Replicas:    1,
		Storage:     jetstream.FileStorage,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
	}
}

// EnsureStream creates or updates the stream with the configured settings.
// This operation is idempotent; calling it multiple times is safe.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	streamCfg := m.streamConfig()

	_, err := m.js.Stream(ctx, m.exchange)
	if err == nil {
		// Stream exists, update configuration
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", m.exchange, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := m.js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", m.exchange, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", m.exchange, err)
}

// EnsureConsumer creates or updates the durable pull consumer for an event
// type. The consumer survives restarts and tracks its own delivery cursor,
// so drains pick up exactly where the previous run stopped.
func (m *StreamManager) EnsureConsumer(ctx context.Context, eventType string) error {
	cfg := consumerConfig(m.exchange, eventType)
	if _, err := m.js.CreateOrUpdateConsumer(ctx, m.exchange, cfg); err != nil {
		return fmt.Errorf("ensure consumer %s: %w", cfg.Durable, err)
	}
	return nil
}

// PurgeEvents removes all queued messages for one event type without
// touching other subjects on the stream.
func (m *StreamManager) PurgeEvents(ctx context.Context, eventType string) error {
	stream, err := m.js.Stream(ctx, m.exchange)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", m.exchange, err)
	}

	subject := EventSubject(m.exchange, eventType)
	if err := stream.Purge(ctx, jetstream.WithPurgeSubject(subject)); err != nil {
		return fmt.Errorf("purge %s: %w", subject, err)
	}
	return nil
}

// DeleteConsumer removes the durable consumer for an event type. Deleting a
// consumer that does not exist is not an error.
func (m *StreamManager) DeleteConsumer(ctx context.Context, eventType string) error {
	err := m.js.DeleteConsumer(ctx, m.exchange, DurableName(eventType))
	if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return fmt.Errorf("delete consumer %s: %w", DurableName(eventType), err)
	}
	return nil
}

// DeleteStream removes the stream and everything queued on it. Deleting a
// stream that does not exist is not an error.
func (m *StreamManager) DeleteStream(ctx context.Context) error {
	err := m.js.DeleteStream(ctx, m.exchange)
	if err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("delete stream %s: %w", m.exchange, err)
	}
	return nil
}

// StreamInfo retrieves current stream state and configuration.
// Returns an error if the stream doesn't exist.
func (m *StreamManager) StreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, m.exchange)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", m.exchange, err)
	}
	return stream.Info(ctx)
}

// IsHealthy checks if the stream exists and is accessible.
func (m *StreamManager) IsHealthy(ctx context.Context) bool {
	_, err := m.js.Stream(ctx, m.exchange)
	return err == nil
}

// consumerConfig is shared between EnsureConsumer and the drain path so the
// consumer a drain binds to always matches the declared one.
func consumerConfig(exchange, eventType string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       DurableName(eventType),
		FilterSubject: EventSubject(exchange, eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       consumerAckWait,
		MaxDeliver:    maxDeliver,
		MaxAckPending: maxAckPending,
	}
}
