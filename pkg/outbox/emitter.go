package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const envelopeVersion = 1

var errTxRequired = errors.New("transaction required")

// DomainEvent is what services hand to Emit. Data becomes the envelope body.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter writes domain events into the outbox table on the caller's
// transaction, so an event exists exactly when its state change commits.
type Emitter struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewEmitter(repo *Repository, logg *logger.Logger) *Emitter {
	return &Emitter{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, envelope, err := e.buildRow(event)
	if err != nil {
		return err
	}
	if err := e.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if e.logg != nil {
		e.logg.Debug(e.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

func (e *Emitter) buildRow(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown event type %q", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	rowID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    rowID.String(),
		Source:     source,
		Subject:    Subject{Type: event.AggregateType, ID: event.AggregateID},
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = envelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = e.now()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            rowID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
