package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// source is stamped on every envelope so downstream consumers can tell
// licensing events apart on a shared topic.
const source = "licensing-backend"

// ActorRef names the user behind an admin or owner action. Cron sweeps and
// webhooks leave it nil.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Subject is the aggregate the event is about.
type Subject struct {
	Type enums.OutboxAggregateType `json:"type"`
	ID   uuid.UUID                 `json:"id"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim. EventID equals the outbox row id, which consumers dedupe on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	Source     string          `json:"source"`
	Subject    Subject         `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
