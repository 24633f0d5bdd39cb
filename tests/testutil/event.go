// Package testutil holds helpers shared by the integration suites.
package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// EventRecorder subscribes to the bus and keeps what it is handed
type EventRecorder struct {
	types []string

	mu     sync.Mutex
	events []shared.DomainEvent
}

// NewEventRecorder records eventTypes, or every event when none are given
func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{types: eventTypes}
}

func (r *EventRecorder) EventTypes() []string { return r.types }

func (r *EventRecorder) Handle(_ context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded, in arrival order
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfType returns the recorded events of one type
func (r *EventRecorder) OfType(eventType string) []shared.DomainEvent {
	return slices.DeleteFunc(r.Events(), func(e shared.DomainEvent) bool {
		return e.EventType() != eventType
	})
}

// EventsOf returns the recorded events of concrete type T
func EventsOf[T shared.DomainEvent](r *EventRecorder) []T {
	var out []T
	for _, e := range r.Events() {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// Event is a bare domain event for exercising handlers
type Event struct {
	shared.BaseDomainEvent
}

// NewEvent returns an event of eventType on a fresh aggregate. A non-nil id
// fixes the event ID.
func NewEvent(eventType string, id uuid.UUID) *Event {
	base := shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New())
	if id != uuid.Nil {
		base.ID = id
	}
	return &Event{BaseDomainEvent: base}
}

var _ shared.EventHandler = (*EventRecorder)(nil)
