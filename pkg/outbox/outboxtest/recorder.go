// Package outboxtest records emitted domain events for assertions.
package outboxtest

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
)

// Recorder satisfies the Emit contract of outbox.Emitter. Events emitted inside a
// transaction that later rolls back stay recorded, so tests should assert on
// committed paths only or call Reset between steps.
type Recorder struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	Err    error
}

func (r *Recorder) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []enums.OutboxEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(eventType enums.OutboxEventType) int {
	n := 0
	for _, t := range r.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
