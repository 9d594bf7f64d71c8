package triggers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/deadletter"
	"pulse/internal/docstore"
)

// Dispatcher consumes the store's change streams directly and dispatches
// each event through the registry with bounded retry. Events whose handlers
// still fail after the last attempt are written to the dead-letter journal
// and skipped, so one poisoned event cannot stall a collection's stream.
type Dispatcher struct {
	store      docstore.Store
	registry   *Registry
	journal    deadletter.Journal
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// NewDispatcher creates a dispatcher with the given retry limit. backoff
// grows linearly with the attempt number.
func NewDispatcher(store docstore.Store, registry *Registry, journal deadletter.Journal, logger *slog.Logger, maxRetries int, backoff time.Duration) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Dispatcher{
		store:      store,
		registry:   registry,
		journal:    journal,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Run watches every registered collection and blocks until ctx is done. The
// per-collection streams are independent; no ordering is guaranteed across
// them, matching the store's delivery contract.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, collection := range d.registry.Collections() {
		events, err := d.store.Watch(ctx, collection)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(collection string, events <-chan docstore.Event) {
			defer wg.Done()
			d.logger.Info("watching collection", "collection", collection)
			for ev := range events {
				d.process(ctx, ev)
			}
		}(collection, events)
	}
	wg.Wait()
	return ctx.Err()
}

// process retries the full handler set for an event. Handlers are idempotent,
// so rerunning the ones that already succeeded alongside the failed one is
// safe.
func (d *Dispatcher) process(ctx context.Context, ev docstore.Event) {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		lastErr = d.registry.Dispatch(ctx, ev)
		if lastErr == nil {
			return
		}
		d.logger.Warn("trigger handler failed, will retry",
			"event_id", ev.ID,
			"collection", ev.Collection,
			"type", ev.Type,
			"attempt", attempt,
			"max_retries", d.maxRetries,
			"error", lastErr)

		if attempt < d.maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * d.backoff):
			case <-ctx.Done():
				return
			}
		}
	}

	rec := deadletter.Record{
		EventID:  ev.ID,
		Handler:  d.registry.handlerNames(ev),
		Event:    ev,
		Error:    lastErr.Error(),
		FailedAt: time.Now().UTC(),
	}
	if err := d.journal.Record(ctx, rec); err != nil {
		d.logger.Error("failed to dead-letter event",
			"event_id", ev.ID,
			"collection", ev.Collection,
			"error", err)
		return
	}
	d.logger.Error("event exhausted retries, dead-lettered",
		"event_id", ev.ID,
		"collection", ev.Collection,
		"type", ev.Type,
		"error", lastErr)
}
