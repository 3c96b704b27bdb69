package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/registry"
)

// harness wires a Service against in-memory collaborators.
type harness struct {
	rows   *rowStore
	dlq    *deadLetters
	pub    *scriptedPublisher
	topics []string
	svc    *Service
}

func newHarness(t *testing.T, maxAttempts int, resolve func(models.OutboxEvent) (*registry.ResolvedEvent, error), rows ...models.OutboxEvent) *harness {
	t.Helper()
	h := &harness{
		rows: &rowStore{pending: rows},
		dlq:  &deadLetters{},
		pub:  &scriptedPublisher{},
	}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{BatchSize: len(rows) + 1, PollIntervalMS: 10, MaxAttempts: maxAttempts}},
		Logger: logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:     inlineTx{},
		PubSub: idlePubSub{},
		Repository: h.rows,
		Registry:   resolverFunc(resolve),
		PublisherFactory: func(topic string) publisher {
			h.topics = append(h.topics, topic)
			return h.pub
		},
		DLQRepository: h.dlq,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func licenseRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"licenseId":"x"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateLicense,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func resolveTo(topic string) func(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return func(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
		return &registry.ResolvedEvent{
			Descriptor: registry.EventDescriptor{EventType: event.EventType, AggregateType: event.AggregateType, Topic: topic},
			Envelope:   outbox.PayloadEnvelope{Version: 1, EventID: event.ID.String()},
		}, nil
	}
}

func TestProcessBatchSettlesEachRowIndependently(t *testing.T) {
	first := licenseRow(t, enums.EventLicenseIssued, 0)
	second := licenseRow(t, enums.EventLicenseExtended, 0)
	h := newHarness(t, 5, resolveTo("license-events"), first, second)
	h.pub.script = []error{errors.New("unavailable"), nil}

	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.rows.retried)
	assert.Equal(t, []uuid.UUID{second.ID}, h.rows.published)
	assert.Empty(t, h.dlq.entries)
	assert.Equal(t, []string{"license-events", "license-events"}, h.topics)
}

func TestPublishedMessageCarriesRoutingAttributes(t *testing.T) {
	row := licenseRow(t, enums.EventSubscriptionRenewed, 0)
	row.AggregateType = enums.AggregateSubscription
	h := newHarness(t, 5, resolveTo("subscription-events"), row)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.pub.sent, 1)

	msg := h.pub.sent[0]
	assert.Equal(t, []byte(row.Payload), msg.Data)
	assert.Equal(t, map[string]string{
		"event_id":       row.ID.String(),
		"event_type":     string(enums.EventSubscriptionRenewed),
		"aggregate_type": string(enums.AggregateSubscription),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     "2026-03-01T12:00:00Z",
		"schema_version": "1",
	}, msg.Attributes)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name     string
		attempts int
		resolve  func(models.OutboxEvent) (*registry.ResolvedEvent, error)
		script   []error
		noTopic  bool
		reason   enums.OutboxDLQErrorReason
	}{
		{
			name:    "undecodable row",
			resolve: func(models.OutboxEvent) (*registry.ResolvedEvent, error) { return nil, registry.NewNonRetryableError(errors.New("bad payload")) },
			reason:  enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:    "no publisher for topic",
			resolve: resolveTo("orphan-topic"),
			noTopic: true,
			reason:  enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:    "broker rejects permanently",
			resolve: resolveTo("license-events"),
			script:  []error{registry.NewNonRetryableError(errors.New("message too large"))},
			reason:  enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "final attempt fails",
			attempts: 2,
			resolve:  resolveTo("license-events"),
			script:   []error{errors.New("deadline exceeded")},
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := licenseRow(t, enums.EventLicenseIssued, tc.attempts)
			h := newHarness(t, 3, tc.resolve, row)
			h.pub.script = tc.script
			if tc.noTopic {
				h.svc.PublisherFactory = func(string) publisher { return nil }
			}

			_, err := h.svc.processBatch(context.Background())
			require.NoError(t, err)
			require.Len(t, h.dlq.entries, 1)

			entry := h.dlq.entries[0]
			assert.Equal(t, row.ID, entry.EventID)
			assert.Equal(t, tc.reason, entry.ErrorReason)
			assert.Equal(t, []byte(row.Payload), []byte(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
			assert.NotEmpty(t, *entry.ErrorMessage)
			assert.Equal(t, []uuid.UUID{row.ID}, h.rows.terminal)
			assert.Empty(t, h.rows.published)
		})
	}
}

func TestProcessBatchSurfacesBookkeepingFailure(t *testing.T) {
	row := licenseRow(t, enums.EventLicenseIssued, 0)
	h := newHarness(t, 5, resolveTo("license-events"), row)
	h.rows.markErr = errors.New("connection reset")

	_, err := h.svc.processBatch(context.Background())
	assert.ErrorIs(t, err, h.rows.markErr)
}

func TestProcessBatchReportsIdleWhenEmpty(t *testing.T) {
	h := newHarness(t, 5, resolveTo("license-events"))
	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, h.pub.sent)
}

func TestRunStopsWhenDependencyIsDown(t *testing.T) {
	h := newHarness(t, 5, resolveTo("license-events"))
	h.svc.PubSub = idlePubSub{err: errors.New("no credentials")}

	err := h.svc.Run(context.Background())
	assert.ErrorContains(t, err, "pubsub ping failed")
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, 5, resolveTo("license-events"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.svc.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	valid := func() ServiceParams {
		return ServiceParams{
			Config:        &config.Config{},
			Logger:        logger.New(logger.Options{Output: io.Discard}),
			DB:            inlineTx{},
			PubSub:        idlePubSub{},
			Repository:    &rowStore{},
			Registry:      resolverFunc(resolveTo("t")),
			DLQRepository: &deadLetters{},
		}
	}
	svc, err := NewService(valid())
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	assert.Equal(t, time.Duration(defaultPollMs)*time.Millisecond, svc.pollInterval)

	for name, strip := range map[string]func(*ServiceParams){
		"config":     func(p *ServiceParams) { p.Config = nil },
		"logger":     func(p *ServiceParams) { p.Logger = nil },
		"db":         func(p *ServiceParams) { p.DB = nil },
		"pubsub":     func(p *ServiceParams) { p.PubSub = nil },
		"repository": func(p *ServiceParams) { p.Repository = nil },
		"registry":   func(p *ServiceParams) { p.Registry = nil },
		"dlq":        func(p *ServiceParams) { p.DLQRepository = nil },
	} {
		params := valid()
		strip(&params)
		_, err := NewService(params)
		assert.Error(t, err, name)
	}
}

func TestNextBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, time.Second, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff, base, maxBackoff))
}

type rowStore struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	retried   []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (s *rowStore) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *rowStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.published = append(s.published, id)
	return nil
}

func (s *rowStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	s.retried = append(s.retried, id)
	return nil
}

func (s *rowStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	s.terminal = append(s.terminal, id)
	return nil
}

type deadLetters struct {
	entries []models.OutboxDLQ
}

func (d *deadLetters) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	d.entries = append(d.entries, entry)
	return nil
}

type resolverFunc func(models.OutboxEvent) (*registry.ResolvedEvent, error)

func (f resolverFunc) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return f(event)
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type idlePubSub struct{ err error }

func (p idlePubSub) Ping(context.Context) error { return p.err }

func (idlePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// scriptedPublisher answers each Publish with the next scripted error; an
// exhausted script means success.
type scriptedPublisher struct {
	script []error
	sent   []*gcppubsub.Message
}

func (p *scriptedPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.sent = append(p.sent, msg)
	var err error
	if len(p.script) > 0 {
		err, p.script = p.script[0], p.script[1:]
	}
	return settled{err: err}
}

type settled struct{ err error }

func (s settled) Get(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}
