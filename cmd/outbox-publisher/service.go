package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/registry"
)

// Tuning used when the outbox config leaves a value at zero.
const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

func (p ServiceParams) validate() error {
	missing := []struct {
		absent bool
		name   string
	}{
		{p.Config == nil, "config"},
		{p.Logger == nil, "logger"},
		{p.DB == nil, "database client"},
		{p.PubSub == nil, "pubsub client"},
		{p.Repository == nil, "outbox repository"},
		{p.Registry == nil, "event registry"},
		{p.DLQRepository == nil, "dlq repository"},
	}
	for _, m := range missing {
		if m.absent {
			return errors.New(m.name + " is required")
		}
	}
	return nil
}

// Service moves committed outbox rows onto their Pub/Sub topics. A batch is
// claimed and settled in one transaction, so two publishers never send the
// same row.
type Service struct {
	ServiceParams

	logg         *logger.Logger
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       *rand.Rand
}

// outcome is how one publish attempt ended.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.PublisherFactory == nil {
		client := params.PubSub
		params.PublisherFactory = func(topic string) publisher {
			return wrapPublisher(client.Publisher(topic))
		}
	}

	tuning := params.Config.Outbox
	return &Service{
		ServiceParams: params,
		logg:          params.Logger,
		batchSize:     positiveOr(tuning.BatchSize, defaultBatchSize),
		maxAttempts:   positiveOr(tuning.MaxAttempts, defaultMaxAttempts),
		pollInterval:  time.Duration(positiveOr(tuning.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		jitter:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch polls again immediately, an
// empty one sleeps one interval, and errors back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.DB.Ping,
		"pubsub":   s.PubSub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, "outbox.dependency_unready", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.stopped")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = s.pollInterval
		}
		if err := sleepCtx(ctx, wait+s.randomJitter()); err != nil {
			return err
		}
	}
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	err := s.DB.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.Repository.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		s.Metrics.ObserveBatch(claimed)
	}
	return claimed > 0, err
}

// dispatch settles one row. Only bookkeeping failures are returned; publish
// failures are recorded on the row itself.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.Registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, nil, enums.OutboxDLQReasonNonRetryable, err)
	}

	topic := resolved.Descriptor.Topic
	switch result, pubErr := s.publish(ctx, event, resolved); result {
	case outcomePublished:
		if err := s.Repository.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.Metrics.IncPublished(topic)
		s.logg.Info(s.logg.WithFields(ctx, s.eventFields(event, resolved)), "outbox.published")
		return nil
	case outcomeDeadLettered:
		return s.deadLetter(ctx, tx, event, resolved, enums.OutboxDLQReasonNonRetryable, pubErr)
	default:
		attempt := event.AttemptCount + 1
		if attempt >= s.maxAttempts {
			return s.deadLetter(ctx, tx, event, resolved, enums.OutboxDLQReasonMaxAttempts,
				fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr))
		}
		fields := s.eventFields(event, resolved)
		fields["attempt_count"] = attempt
		fields["error"] = pubErr.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.publish_failed")
		if err := s.Repository.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.Metrics.IncRetried(topic)
		return nil
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) (outcome, error) {
	topic := resolved.Descriptor.Topic
	pub := s.PublisherFactory(topic)
	if pub == nil {
		return outcomeDeadLettered, fmt.Errorf("no publisher for topic %q", topic)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return outcomeDeadLettered, fmt.Errorf("publisher for topic %q returned no result", topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		if registry.IsNonRetryable(err) {
			return outcomeDeadLettered, err
		}
		return outcomeRetry, err
	}
	return outcomePublished, nil
}

// messageAttributes lets subscribers route and dedupe without decoding the payload.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		"schema_version": strconv.Itoa(envelope.Version),
	}
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := s.eventFields(event, resolved)
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	if err := s.DLQRepository.InsertTx(tx, event.DeadLetter(reason, cause.Error(), time.Now().UTC())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.Repository.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.Metrics.IncDeadLettered(string(reason))
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) randomJitter() time.Duration {
	return time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < limit {
		return next
	}
	return limit
}
