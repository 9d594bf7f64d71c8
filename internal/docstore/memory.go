package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by dev mode. It emulates
// the production backend's semantics, including change-event fan-out to
// watchers, so trigger handlers can be exercised without infrastructure.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Fields
	watchers    map[string][]chan Event
	nextSeq     int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Fields),
		watchers:    make(map[string][]chan Event),
	}
}

func (m *Memory) collection(name string) map[string]Fields {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Fields)
		m.collections[name] = c
	}
	return c
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.collection(collection)[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(f)}, nil
}

// Query implements Store.
func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	docs := make([]Document, 0)
	for id, f := range m.collection(collection) {
		if matches(f, q.Filters) {
			docs = append(docs, Document{ID: id, Fields: cloneFields(f)})
		}
	}
	m.mu.Unlock()

	if q.OrderBy != "" {
		sort.Slice(docs, func(i, j int) bool {
			a := fmt.Sprint(docs[i].Fields[q.OrderBy])
			b := fmt.Sprint(docs[j].Fields[q.OrderBy])
			if q.Desc {
				return a > b
			}
			return a < b
		})
	} else {
		// Stable output for callers that do not care about order.
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func matches(f Fields, filters []Filter) bool {
	for _, flt := range filters {
		if f[flt.Field] != flt.Value {
			return false
		}
	}
	return true
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	if err := m.Create(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	c := m.collection(collection)
	if _, ok := c[id]; ok {
		m.mu.Unlock()
		return ErrExists
	}
	c[id] = cloneFields(fields)
	ev := m.eventLocked(EventCreate, collection, id, nil, fields)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	c := m.collection(collection)
	before, existed := c[id]
	c[id] = cloneFields(fields)
	var ev Event
	if existed {
		ev = m.eventLocked(EventUpdate, collection, id, before, fields)
	} else {
		ev = m.eventLocked(EventCreate, collection, id, nil, fields)
	}
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// UpdateFields implements Store.
func (m *Memory) UpdateFields(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	c := m.collection(collection)
	before, ok := c[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	after := cloneFields(before)
	for k, v := range fields {
		after[k] = v
	}
	c[id] = after
	ev := m.eventLocked(EventUpdate, collection, id, before, after)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Increment implements Store.
func (m *Memory) Increment(_ context.Context, collection, id, field string, delta int64) error {
	m.mu.Lock()
	c := m.collection(collection)
	before, ok := c[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	after := cloneFields(before)
	after[field] = AsInt(after[field]) + delta
	c[id] = after
	ev := m.eventLocked(EventUpdate, collection, id, before, after)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Delete implements Store. Deleting an absent document is a no-op.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	c := m.collection(collection)
	before, ok := c[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(c, id)
	ev := m.eventLocked(EventDelete, collection, id, before, nil)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

func (m *Memory) eventLocked(t EventType, collection, id string, before, after Fields) Event {
	m.nextSeq++
	return Event{
		ID:         fmt.Sprintf("%s-%d", collection, m.nextSeq),
		Type:       t,
		Collection: collection,
		DocID:      id,
		Before:     cloneFields(before),
		After:      cloneFields(after),
		OccurredAt: time.Now().UTC(),
	}
}

// emit delivers events to watchers. Watcher lists are snapshotted under the
// lock; delivery happens outside it so a slow subscriber cannot stall writes
// holding the store mutex.
func (m *Memory) emit(events ...Event) {
	m.mu.Lock()
	perEvent := make([][]chan Event, len(events))
	for i, ev := range events {
		perEvent[i] = append([]chan Event(nil), m.watchers[ev.Collection]...)
	}
	m.mu.Unlock()

	for i, ev := range events {
		for _, ch := range perEvent[i] {
			ch <- ev
		}
	}
}

// Batch implements Store.
func (m *Memory) Batch() Batch {
	return &memoryBatch{store: m}
}

type stagedOp struct {
	del        bool
	collection string
	id         string
	fields     Fields
}

type memoryBatch struct {
	store *Memory
	ops   []stagedOp
}

func (b *memoryBatch) Update(collection, id string, fields Fields) {
	b.ops = append(b.ops, stagedOp{collection: collection, id: id, fields: cloneFields(fields)})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, stagedOp{del: true, collection: collection, id: id})
}

// Commit applies every staged op or none. Updates against absent documents
// fail the whole batch; deletes of absent documents are no-ops.
func (b *memoryBatch) Commit(_ context.Context) error {
	m := b.store
	m.mu.Lock()
	for _, op := range b.ops {
		if op.del {
			continue
		}
		if _, ok := m.collection(op.collection)[op.id]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("batch update %s/%s: %w", op.collection, op.id, ErrNotFound)
		}
	}

	events := make([]Event, 0, len(b.ops))
	for _, op := range b.ops {
		c := m.collection(op.collection)
		before, existed := c[op.id]
		if op.del {
			if !existed {
				continue
			}
			delete(c, op.id)
			events = append(events, m.eventLocked(EventDelete, op.collection, op.id, before, nil))
			continue
		}
		after := cloneFields(before)
		for k, v := range op.fields {
			after[k] = v
		}
		c[op.id] = after
		events = append(events, m.eventLocked(EventUpdate, op.collection, op.id, before, after))
	}
	m.mu.Unlock()

	m.emit(events...)
	return nil
}

// Watch implements Store. The returned channel closes when ctx is done.
func (m *Memory) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	ch := make(chan Event, 256)
	m.mu.Lock()
	m.watchers[collection] = append(m.watchers[collection], ch)
	m.mu.Unlock()

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				m.removeWatcher(collection, ch)
				return
			case ev := <-ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					m.removeWatcher(collection, ch)
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) removeWatcher(collection string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.watchers[collection]
	for i, w := range ws {
		if w == ch {
			m.watchers[collection] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// Count returns the number of documents in a collection. Test helper.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collection(collection))
}

// Dump returns a readable snapshot of a collection. Test helper.
func (m *Memory) Dump(collection string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sb strings.Builder
	for id, f := range m.collection(collection) {
		fmt.Fprintf(&sb, "%s: %v\n", id, f)
	}
	return sb.String()
}
