package event

import (
	"slices"
	"sync"

	"github.com/medrx/backend/internal/domain/shared"
)

// AnyEvent routes every event type to a handler
const AnyEvent = "*"

// HandlerRegistry routes event types to handlers. Handlers for a specific
// type run before AnyEvent handlers, each group in subscription order.
type HandlerRegistry struct {
	mu     sync.RWMutex
	routes map[string][]shared.EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{routes: make(map[string][]shared.EventHandler)}
}

// Register routes eventTypes to handler; no types means AnyEvent. Routing
// the same handler twice to a type is a no-op.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = []string{AnyEvent}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range eventTypes {
		if !slices.Contains(r.routes[t], handler) {
			r.routes[t] = append(r.routes[t], handler)
		}
	}
}

// Unregister drops every route to handler
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, hs := range r.routes {
		hs = slices.DeleteFunc(hs, func(h shared.EventHandler) bool { return h == handler })
		if len(hs) == 0 {
			delete(r.routes, t)
			continue
		}
		r.routes[t] = hs
	}
}

// GetHandlers returns a snapshot of the handlers for eventType
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if eventType == AnyEvent {
		return slices.Clone(r.routes[AnyEvent])
	}
	return slices.Concat(r.routes[eventType], r.routes[AnyEvent])
}

// EventTypes returns the routed event types, sorted, without AnyEvent
func (r *HandlerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		if t != AnyEvent {
			types = append(types, t)
		}
	}
	slices.Sort(types)
	return types
}
