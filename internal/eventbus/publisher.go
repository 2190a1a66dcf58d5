// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/statflow/statflow/internal/config"
	"github.com/statflow/statflow/internal/logging"
	"github.com/statflow/statflow/internal/metrics"
)

const (
	maxReconnects = -1 // Unlimited
	reconnectWait = 2 * time.Second

	publishRetryAttempts = 3
	publishRetryWait     = 100 * time.Millisecond
)

// Publisher writes event batches onto the stream through Watermill.
// Publish returns only after the broker has acknowledged every message;
// failed batches are reported to the caller for retry. A circuit breaker
// fails publishes fast while the broker is unreachable.
type Publisher struct {
	publisher  message.Publisher
	exchange   string
	serializer *Serializer
	logger     zerolog.Logger

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker[any]
	closed  bool
}

// NewPublisher creates a JetStream publisher for the configured exchange.
// The stream itself is provisioned separately by the StreamManager.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewPublisher(cfg *config.NATSConfig, logger zerolog.Logger) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nats config required")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: connectOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // Stream is pre-created by StreamManager
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(publishRetryAttempts),
				natsgo.RetryWait(publishRetryWait),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logging.NewWatermillLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher:  pub,
		exchange:   exchange,
		serializer: NewSerializer(),
		logger:     logger,
		breaker:    NewCircuitBreaker(DefaultBreakerConfig("events-publish")),
	}, nil
}

// SetCircuitBreaker replaces the publish circuit breaker. Passing nil
// disables breaker protection entirely.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[any]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breaker = cb
}

// Publish sends a finite batch of events for one event type. Each event
// becomes one message with its UUID as Nats-Msg-Id, so broker-side
// deduplication applies within the stream's duplicate window.
func (p *Publisher) Publish(ctx context.Context, eventType string, events []map[string]any) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(events))
	for i, event := range events {
		data, err := p.serializer.Marshal(event)
		if err != nil {
			return fmt.Errorf("serialize event %d: %w", i, err)
		}

		msg := message.NewMessage(uuid.NewString(), data)
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		msg.Metadata.Set("event_type", eventType)
		msgs = append(msgs, msg)
	}

	if err := p.publishAll(EventSubject(p.exchange, eventType), msgs); err != nil {
		metrics.RecordPublishError(eventType)
		return err
	}

	metrics.RecordEventsPublished(eventType, len(msgs))
	return nil
}

// PublishRaw sends a single pre-encoded payload to an arbitrary subject on
// the stream. Task dispatch uses this for the task subject.
func (p *Publisher) PublishRaw(ctx context.Context, subject string, payload []byte) error {
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	return p.publishAll(subject, []*message.Message{msg})
}

func (p *Publisher) publishAll(subject string, msgs []*message.Message) error {
	p.mu.RLock()
	closed := p.closed
	breaker := p.breaker
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("publisher is closed")
	}

	publish := func() error {
		for _, msg := range msgs {
			if err := p.publisher.Publish(subject, msg); err != nil {
				return fmt.Errorf("publish message %s: %w", msg.UUID, err)
			}
		}
		return nil
	}

	if breaker == nil {
		return publish()
	}

	_, err := breaker.Execute(func() (any, error) {
		return nil, publish()
	})
	return err
}

// Exchange returns the stream name this publisher writes to.
func (p *Publisher) Exchange() string {
	return p.exchange
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

// connectOptions returns NATS connection options with reconnection handling.
// Shared by the publisher and Connect so both sides of the bus behave the
// same way during broker restarts.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func connectOptions(logger zerolog.Logger) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
			event := logger.Error().Err(err)
			if sub != nil {
				event = event.Str("subject", sub.Subject)
			}
			event.Msg("NATS async error")
		}),
	}
}
