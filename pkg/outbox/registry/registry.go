// Package registry maps outbox event types to their topic and payload schema
// and decodes stored rows before they are published.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a row whose envelope and typed payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, however often it
// is retried.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes license and redemption events to the license topic,
// and billing events to the subscription topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	license := strings.TrimSpace(cfg.LicenseTopic)
	billing := strings.TrimSpace(cfg.SubscriptionTopic)
	if license == "" {
		return nil, errors.New("license topic is required")
	}
	if billing == "" {
		return nil, errors.New("subscription topic is required")
	}

	descriptors := []EventDescriptor{
		describe[payloads.LicenseIssuedEvent](enums.EventLicenseIssued, enums.AggregateLicense, license),
		describe[payloads.LicenseStatusChangedEvent](enums.EventLicenseStatusChanged, enums.AggregateLicense, license),
		describe[payloads.LicenseEntitlementsEvent](enums.EventLicenseEntitlementsGranted, enums.AggregateLicense, license),
		describe[payloads.LicenseEntitlementsEvent](enums.EventLicenseEntitlementsRevoked, enums.AggregateLicense, license),
		describe[payloads.LicenseExtendedEvent](enums.EventLicenseExtended, enums.AggregateLicense, license),
		describe[payloads.LicenseRedeemedEvent](enums.EventLicenseRedeemed, enums.AggregateRedeemCode, license),
		describe[payloads.SubscriptionRenewedEvent](enums.EventSubscriptionRenewed, enums.AggregateSubscription, billing),
		describe[payloads.SubscriptionRenewalFailedEvent](enums.EventSubscriptionRenewalFailed, enums.AggregateSubscription, billing),
		describe[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder, billing),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Descriptor returns the registration for an event type.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	d, ok := r.entries[eventType]
	return d, ok
}

// Resolve checks the row against its registration and decodes the payload.
// Every failure is non-retryable: the row itself is malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, rejectf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, rejectf("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
