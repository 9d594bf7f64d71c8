package triggers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"pulse/internal/deadletter"
	"pulse/internal/docstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	var created, deleted int
	registry.OnCreate("likes", "count.creates", func(ctx context.Context, ev docstore.Event) error {
		created++
		return nil
	})
	registry.OnDelete("likes", "count.deletes", func(ctx context.Context, ev docstore.Event) error {
		deleted++
		return nil
	})

	if err := registry.Dispatch(ctx, docstore.Event{Collection: "likes", Type: docstore.EventCreate}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	// No handler registered for this route.
	if err := registry.Dispatch(ctx, docstore.Event{Collection: "posts", Type: docstore.EventCreate}); err != nil {
		t.Fatalf("Dispatch of unrouted event failed: %v", err)
	}
	if created != 1 || deleted != 0 {
		t.Errorf("expected created=1 deleted=0, got %d/%d", created, deleted)
	}
}

func TestRegistryDispatch_OneFailureDoesNotStopOthers(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("boom")

	var ran bool
	registry.OnCreate("likes", "failing", func(ctx context.Context, ev docstore.Event) error {
		return boom
	})
	registry.OnCreate("likes", "succeeding", func(ctx context.Context, ev docstore.Event) error {
		ran = true
		return nil
	})

	err := registry.Dispatch(context.Background(), docstore.Event{Collection: "likes", Type: docstore.EventCreate})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error containing boom, got %v", err)
	}
	if !ran {
		t.Error("second handler must still run when the first fails")
	}
}

func TestRegistryCollections(t *testing.T) {
	registry := NewRegistry()
	registry.OnCreate("likes", "a", func(ctx context.Context, ev docstore.Event) error { return nil })
	registry.OnDelete("likes", "b", func(ctx context.Context, ev docstore.Event) error { return nil })
	registry.OnDelete("posts", "c", func(ctx context.Context, ev docstore.Event) error { return nil })

	got := registry.Collections()
	if len(got) != 2 {
		t.Errorf("expected 2 collections, got %v", got)
	}
}

func TestDispatcher_DeliversEvents(t *testing.T) {
	store := docstore.NewMemory()
	registry := NewRegistry()
	journal := deadletter.NewMemory()

	var handled atomic.Int32
	registry.OnCreate("likes", "record", func(ctx context.Context, ev docstore.Event) error {
		handled.Add(1)
		return nil
	})

	dispatcher := NewDispatcher(store, registry, journal, discardLogger(), 3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dispatcher.Run(ctx) }()

	// Give the watcher a moment to attach before writing.
	time.Sleep(20 * time.Millisecond)
	if err := store.Create(ctx, "likes", "bob#p1", docstore.Fields{"postId": "p1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitFor(t, func() bool { return handled.Load() == 1 })
}

func TestDispatcher_RetriesThenDeadLetters(t *testing.T) {
	store := docstore.NewMemory()
	registry := NewRegistry()
	journal := deadletter.NewMemory()

	var attempts atomic.Int32
	registry.OnCreate("likes", "always.failing", func(ctx context.Context, ev docstore.Event) error {
		attempts.Add(1)
		return errors.New("poisoned")
	})

	dispatcher := NewDispatcher(store, registry, journal, discardLogger(), 3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dispatcher.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if err := store.Create(ctx, "likes", "bob#p1", docstore.Fields{"postId": "p1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitFor(t, func() bool { return len(journal.Records()) == 1 })

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	rec := journal.Records()[0]
	if rec.Handler != "always.failing" {
		t.Errorf("unexpected handler name in record: %q", rec.Handler)
	}
	if rec.Event.DocID != "bob#p1" || rec.Error == "" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestDispatcher_TransientFailureRecovers(t *testing.T) {
	store := docstore.NewMemory()
	registry := NewRegistry()
	journal := deadletter.NewMemory()

	var attempts atomic.Int32
	registry.OnCreate("likes", "flaky", func(ctx context.Context, ev docstore.Event) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	dispatcher := NewDispatcher(store, registry, journal, discardLogger(), 3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dispatcher.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if err := store.Create(ctx, "likes", "bob#p1", docstore.Fields{"postId": "p1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitFor(t, func() bool { return attempts.Load() == 2 })

	// Let any stray dead-lettering settle, then assert there was none.
	time.Sleep(20 * time.Millisecond)
	if got := len(journal.Records()); got != 0 {
		t.Errorf("recovered event must not be dead-lettered, got %d records", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
