// Package triggers delivers document change events to the reactive handlers.
// Delivery is at-least-once in every mode, so handlers must be (and are)
// idempotent; the package's job is routing, retry and dead-lettering, never
// deduplication of effects.
package triggers

import (
	"context"
	"errors"
	"fmt"

	"pulse/internal/docstore"
)

// Handler is a reactive handler: a function of the event and current store
// state. A nil return consumes the event; an error requests redelivery.
type Handler func(ctx context.Context, ev docstore.Event) error

type namedHandler struct {
	name string
	fn   Handler
}

type routeKey struct {
	collection string
	eventType  docstore.EventType
}

// Registry maps (collection, event type) pairs to handlers. It is assembled
// at startup and read-only afterwards.
type Registry struct {
	routes map[routeKey][]namedHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[routeKey][]namedHandler)}
}

// OnCreate registers a handler for create events on a collection.
func (r *Registry) OnCreate(collection, name string, fn Handler) {
	r.on(collection, docstore.EventCreate, name, fn)
}

// OnUpdate registers a handler for update events on a collection.
func (r *Registry) OnUpdate(collection, name string, fn Handler) {
	r.on(collection, docstore.EventUpdate, name, fn)
}

// OnDelete registers a handler for delete events on a collection.
func (r *Registry) OnDelete(collection, name string, fn Handler) {
	r.on(collection, docstore.EventDelete, name, fn)
}

func (r *Registry) on(collection string, t docstore.EventType, name string, fn Handler) {
	key := routeKey{collection: collection, eventType: t}
	r.routes[key] = append(r.routes[key], namedHandler{name: name, fn: fn})
}

// Collections returns every collection with at least one handler.
func (r *Registry) Collections() []string {
	seen := make(map[string]bool)
	out := []string{}
	for key := range r.routes {
		if !seen[key.collection] {
			seen[key.collection] = true
			out = append(out, key.collection)
		}
	}
	return out
}

// Dispatch runs every handler registered for the event. Handlers run
// independently: one failing does not stop the others, and the joined error
// names each failure.
func (r *Registry) Dispatch(ctx context.Context, ev docstore.Event) error {
	key := routeKey{collection: ev.Collection, eventType: ev.Type}
	var errs []error
	for _, h := range r.routes[key] {
		if err := h.fn(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// handlerNames lists the handlers registered for an event, for logging and
// dead-letter records.
func (r *Registry) handlerNames(ev docstore.Event) string {
	key := routeKey{collection: ev.Collection, eventType: ev.Type}
	names := ""
	for i, h := range r.routes[key] {
		if i > 0 {
			names += ","
		}
		names += h.name
	}
	return names
}
