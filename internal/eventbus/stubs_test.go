// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package eventbus

import (
	"context"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MockStream implements jetstream.Stream for testing.
type MockStream struct {
	mu       sync.Mutex
	config   jetstream.StreamConfig
	state    jetstream.StreamState
	infoErr  error
	purgeErr error
	purged   []jetstream.StreamPurgeRequest
}

func (m *MockStream) Info(ctx context.Context, opts ...jetstream.StreamInfoOpt) (*jetstream.StreamInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return &jetstream.StreamInfo{Config: m.config, State: m.state}, nil
}

func (m *MockStream) CachedInfo() *jetstream.StreamInfo {
	return &jetstream.StreamInfo{Config: m.config, State: m.state}
}

func (m *MockStream) Purge(ctx context.Context, opts ...jetstream.StreamPurgeOpt) error {
	if m.purgeErr != nil {
		return m.purgeErr
	}
	var req jetstream.StreamPurgeRequest
	for _, opt := range opts {
		if err := opt(&req); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.purged = append(m.purged, req)
	m.mu.Unlock()
	return nil
}

func (m *MockStream) PurgedSubjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subjects := make([]string, 0, len(m.purged))
	for _, req := range m.purged {
		subjects = append(subjects, req.Subject)
	}
	return subjects
}

func (m *MockStream) CreateOrUpdateConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	return nil, nil
}

func (m *MockStream) OrderedConsumer(ctx context.Context, cfg jetstream.OrderedConsumerConfig) (jetstream.Consumer, error) {
	return nil, nil
}

func (m *MockStream) Consumer(ctx context.Context, name string) (jetstream.Consumer, error) {
	return nil, nil
}

func (m *MockStream) DeleteConsumer(ctx context.Context, name string) error { return nil }

func (m *MockStream) CreateConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	return nil, nil
}

func (m *MockStream) UpdateConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	return nil, nil
}

func (m *MockStream) ListConsumers(ctx context.Context) jetstream.ConsumerInfoLister { return nil }

func (m *MockStream) ConsumerNames(ctx context.Context) jetstream.ConsumerNameLister { return nil }

func (m *MockStream) CreateOrUpdatePushConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.PushConsumer, error) {
	return nil, nil
}

func (m *MockStream) CreatePushConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.PushConsumer, error) {
	return nil, nil
}

func (m *MockStream) UpdatePushConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.PushConsumer, error) {
	return nil, nil
}

func (m *MockStream) PushConsumer(ctx context.Context, name string) (jetstream.PushConsumer, error) {
	return nil, nil
}

func (m *MockStream) PauseConsumer(ctx context.Context, name string, pauseUntil time.Time) (*jetstream.ConsumerPauseResponse, error) {
	return nil, nil
}

func (m *MockStream) ResumeConsumer(ctx context.Context, name string) (*jetstream.ConsumerPauseResponse, error) {
	return nil, nil
}

func (m *MockStream) UnpinConsumer(ctx context.Context, name string, group string) error {
	return nil
}

func (m *MockStream) GetMsg(ctx context.Context, seq uint64, opts ...jetstream.GetMsgOpt) (*jetstream.RawStreamMsg, error) {
	return nil, nil
}

func (m *MockStream) GetLastMsgForSubject(ctx context.Context, subject string) (*jetstream.RawStreamMsg, error) {
	return nil, nil
}

func (m *MockStream) DeleteMsg(ctx context.Context, seq uint64) error { return nil }

func (m *MockStream) SecureDeleteMsg(ctx context.Context, seq uint64) error { return nil }

// MockJetStreamContext implements the JetStreamContext interface for testing.
type MockJetStreamContext struct {
	mu               sync.Mutex
	streams          map[string]*MockStream
	streamErr        error
	createErr        error
	updateErr        error
	createCalls      int
	updateCalls      int
	consumers        map[string]jetstream.ConsumerConfig
	consumerErr      error
	fetchConsumer    jetstream.Consumer
	deletedConsumers []string
	deleteErr        error
}

func NewMockJetStreamContext() *MockJetStreamContext {
	return &MockJetStreamContext{
		streams:   make(map[string]*MockStream),
		consumers: make(map[string]jetstream.ConsumerConfig),
	}
}

func (m *MockJetStreamContext) Stream(ctx context.Context, name string) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if stream, ok := m.streams[name]; ok {
		return stream, nil
	}
	return nil, jetstream.ErrStreamNotFound
}

func (m *MockJetStreamContext) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	stream := &MockStream{config: cfg}
	m.streams[cfg.Name] = stream
	return stream, nil
}

func (m *MockJetStreamContext) UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if stream, ok := m.streams[cfg.Name]; ok {
		stream.config = cfg
		return stream, nil
	}
	return nil, jetstream.ErrStreamNotFound
}

func (m *MockJetStreamContext) DeleteStream(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.streams[name]; !ok {
		return jetstream.ErrStreamNotFound
	}
	delete(m.streams, name)
	return nil
}

func (m *MockJetStreamContext) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumerErr != nil {
		return nil, m.consumerErr
	}
	m.consumers[cfg.Durable] = cfg
	if m.fetchConsumer != nil {
		return m.fetchConsumer, nil
	}
	return &MockConsumer{}, nil
}

func (m *MockJetStreamContext) DeleteConsumer(ctx context.Context, stream string, consumer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedConsumers = append(m.deletedConsumers, consumer)
	return nil
}

// fetchResult scripts one FetchNoWait call on a MockConsumer.
type fetchResult struct {
	batch jetstream.MessageBatch
	err   error
}

// MockConsumer implements jetstream.Consumer with scripted fetch results.
// Calls beyond the script return empty batches.
type MockConsumer struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (c *MockConsumer) FetchNoWait(batch int) (jetstream.MessageBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.results) {
		c.calls++
		return &MockMessageBatch{}, nil
	}
	result := c.results[c.calls]
	c.calls++
	return result.batch, result.err
}

func (c *MockConsumer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *MockConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	return nil, nil
}

func (c *MockConsumer) FetchBytes(maxBytes int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	return nil, nil
}

func (c *MockConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	return nil, nil
}

func (c *MockConsumer) Messages(opts ...jetstream.PullMessagesOpt) (jetstream.MessagesContext, error) {
	return nil, nil
}

func (c *MockConsumer) Next(opts ...jetstream.FetchOpt) (jetstream.Msg, error) { return nil, nil }

func (c *MockConsumer) Info(ctx context.Context) (*jetstream.ConsumerInfo, error) { return nil, nil }

func (c *MockConsumer) CachedInfo() *jetstream.ConsumerInfo { return nil }

// MockMessageBatch implements jetstream.MessageBatch over a fixed message list.
type MockMessageBatch struct {
	msgs []jetstream.Msg
	err  error
}

func (b *MockMessageBatch) Messages() <-chan jetstream.Msg {
	ch := make(chan jetstream.Msg, len(b.msgs))
	for _, msg := range b.msgs {
		ch <- msg
	}
	close(ch)
	return ch
}

func (b *MockMessageBatch) Error() error { return b.err }

// MockMsg implements jetstream.Msg for testing.
type MockMsg struct {
	data    []byte
	subject string
	ackErr  error
	acked   bool
	termed  bool
}

func (m *MockMsg) Data() []byte { return m.data }

func (m *MockMsg) Subject() string { return m.subject }

func (m *MockMsg) Reply() string { return "" }

func (m *MockMsg) Headers() natsgo.Header { return nil }

func (m *MockMsg) Metadata() (*jetstream.MsgMetadata, error) { return nil, nil }

func (m *MockMsg) Ack() error {
	m.acked = true
	return m.ackErr
}

func (m *MockMsg) DoubleAck(ctx context.Context) error { return nil }

func (m *MockMsg) Nak() error { return nil }

func (m *MockMsg) NakWithDelay(delay time.Duration) error { return nil }

func (m *MockMsg) InProgress() error { return nil }

func (m *MockMsg) Term() error {
	m.termed = true
	return nil
}

func (m *MockMsg) TermWithReason(reason string) error {
	m.termed = true
	return nil
}
