// Package docstore defines the document store capability the rest of the
// system is built on: named collections of key-addressable documents with
// equality queries, atomic single-document updates, all-or-nothing batches
// and at-least-once change notifications.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("document already exists")
	// ErrUnavailable wraps transient infrastructure failures.
	ErrUnavailable = errors.New("store unavailable")
)

// Fields is the schemaless payload of a document.
type Fields map[string]any

// Document is a stored document together with its id.
type Document struct {
	ID     string
	Fields Fields
}

// Filter is a single equality predicate.
type Filter struct {
	Field string
	Value any
}

// Query selects documents by equality filters with optional ordering.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where is a convenience constructor for a single-filter query.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// And appends another equality filter.
func (q Query) And(field string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Value: value})
	return q
}

// Order sets the sort field and direction.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// EventType classifies a change event.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is a single change notification. Delivery is at-least-once and
// carries no ordering guarantee across collections.
type Event struct {
	ID         string    `json:"id"`         // unique per emission, for dedup
	Type       EventType `json:"type"`
	Collection string    `json:"collection"`
	DocID      string    `json:"doc_id"`
	Before     Fields    `json:"before,omitempty"` // update, delete
	After      Fields    `json:"after,omitempty"`  // create, update
	OccurredAt time.Time `json:"occurred_at"`
}

// Batch stages updates and deletes that commit as one unit. A failed commit
// leaves every staged write unapplied, unless the backend reports that it
// cannot provide atomicity (see Store implementations).
type Batch interface {
	Update(collection, id string, fields Fields)
	Delete(collection, id string)
	Commit(ctx context.Context) error
}

// Store is the capability surface consumed by the consistency core.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns all documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Insert stores fields under a generated id and returns it.
	Insert(ctx context.Context, collection string, fields Fields) (string, error)
	// Create stores fields under the given id, failing with ErrExists if the
	// id is already taken. This is the unique-insert primitive that makes
	// keyed documents race-free.
	Create(ctx context.Context, collection, id string, fields Fields) error
	// Put overwrites the document under id, creating it if absent.
	Put(ctx context.Context, collection, id string, fields Fields) error
	// UpdateFields merges fields into an existing document or returns
	// ErrNotFound.
	UpdateFields(ctx context.Context, collection, id string, fields Fields) error
	// Increment atomically adds delta to a numeric field of an existing
	// document.
	Increment(ctx context.Context, collection, id, field string, delta int64) error
	// Delete removes the document. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Batch starts a new staged write batch.
	Batch() Batch
	// Watch streams change events for one collection until ctx is done.
	Watch(ctx context.Context, collection string) (<-chan Event, error)
}

// AsInt normalizes the numeric types a schemaless backend may hand back for
// counter fields.
func AsInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// AsString returns v as a string, or "" when absent or of another type.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsBool returns v as a bool, or false when absent or of another type.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}
