// Package deadletter records change events whose handlers could not complete
// even after retries, so a partial cascade or a stuck trigger is never
// silently lost.
package deadletter

import (
	"context"
	"sync"
	"time"

	"pulse/internal/docstore"
)

// Record is one failed event together with the handler that gave up on it.
type Record struct {
	EventID  string         `json:"event_id"`
	Handler  string         `json:"handler"`
	Event    docstore.Event `json:"event"`
	Error    string         `json:"error"`
	FailedAt time.Time      `json:"failed_at"`
}

// Journal persists dead-letter records.
type Journal interface {
	Record(ctx context.Context, rec Record) error
}

// Memory is an in-process journal for tests and dev mode.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory { return &Memory{} }

// Record implements Journal.
func (m *Memory) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}
