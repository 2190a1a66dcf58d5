// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/statflow/statflow/internal/config"
	"github.com/statflow/statflow/internal/metrics"
)

const defaultFetchBatch = 500

// Consumer drains queued events one event type at a time through the type's
// durable pull consumer.
//
// Messages are acknowledged as soon as they decode: the indexer's
// deterministic document ids make re-processing after a crash harmless,
// while redelivering a poison payload would wedge the queue. Payloads that
// fail to decode are terminated and logged.
type Consumer struct {
	js         JetStreamContext
	exchange   string
	batchSize  int
	serializer *Serializer
	logger     zerolog.Logger
}

// NewConsumer creates a drain consumer over an existing JetStream context.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewConsumer(js JetStreamContext, cfg *config.NATSConfig, logger zerolog.Logger) (*Consumer, error) {
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
	batch := cfg.FetchBatchSize
	if batch <= 0 {
		batch = defaultFetchBatch
	}

	return &Consumer{
		js:         js,
		exchange:   exchange,
		batchSize:  batch,
		serializer: NewSerializer(),
		logger:     logger,
	}, nil
}

// Drain fetches everything currently enqueued for the event type and invokes
// the handler once per decoded event. It returns the number of events
// handled. The drain stops at the first fetch that comes back empty, keeping
// each run finite.
func (c *Consumer) Drain(ctx context.Context, eventType string, handler func(event map[string]any)) (int, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.exchange, consumerConfig(c.exchange, eventType))
	if err != nil {
		return 0, fmt.Errorf("bind consumer %s: %w", DurableName(eventType), err)
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := cons.FetchNoWait(c.batchSize)
		if err != nil {
			return total, fmt.Errorf("fetch %s: %w", eventType, err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++

			event, err := c.serializer.Unmarshal(msg.Data())
			if err != nil {
				c.logger.Error().
					Err(err).
					Str("event_type", eventType).
					Str("subject", msg.Subject()).
					Msg("Dropping undecodable event")
				// Term stops redelivery of the poison payload.
				if termErr := msg.Term(); termErr != nil {
					c.logger.Error().Err(termErr).Msg("Terminate message failed")
				}
				continue
			}

			if ackErr := msg.Ack(); ackErr != nil {
				c.logger.Warn().
					Err(ackErr).
					Str("event_type", eventType).
					Msg("Ack failed, duplicate delivery possible")
			}

			handler(event)
			total++
		}

		if err := batch.Error(); err != nil {
			return total, fmt.Errorf("fetch %s: %w", eventType, err)
		}
		if received == 0 {
			break
		}
	}

	if total > 0 {
		metrics.RecordEventsConsumed(eventType, total)
	}
	return total, nil
}
