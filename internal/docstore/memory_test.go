package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_CreateAndGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	err := store.Create(ctx, "posts", "p1", Fields{"body": "hello", "likeCount": int64(0)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	doc, err := store.Get(ctx, "posts", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.ID != "p1" || doc.Fields["body"] != "hello" {
		t.Errorf("unexpected document: %+v", doc)
	}

	if _, err := store.Get(ctx, "posts", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_CreateDuplicate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Create(ctx, "likes", "a#p1", Fields{"userHandle": "a"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := store.Create(ctx, "likes", "a#p1", Fields{"userHandle": "a"}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestMemory_UpdateFields(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.UpdateFields(ctx, "posts", "p1", Fields{"body": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = store.Create(ctx, "posts", "p1", Fields{"body": "a", "extra": "keep"})
	if err := store.UpdateFields(ctx, "posts", "p1", Fields{"body": "b"}); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}

	doc, _ := store.Get(ctx, "posts", "p1")
	if doc.Fields["body"] != "b" {
		t.Errorf("expected body=b, got %v", doc.Fields["body"])
	}
	if doc.Fields["extra"] != "keep" {
		t.Errorf("merge dropped unrelated field: %v", doc.Fields)
	}
}

func TestMemory_Increment(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Create(ctx, "posts", "p1", Fields{"likeCount": int64(0)})
	for i := 0; i < 3; i++ {
		if err := store.Increment(ctx, "posts", "p1", "likeCount", 1); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	_ = store.Increment(ctx, "posts", "p1", "likeCount", -1)

	doc, _ := store.Get(ctx, "posts", "p1")
	if got := AsInt(doc.Fields["likeCount"]); got != 2 {
		t.Errorf("expected likeCount=2, got %d", got)
	}

	if err := store.Increment(ctx, "posts", "missing", "likeCount", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DeleteIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Create(ctx, "posts", "p1", Fields{"body": "x"})
	if err := store.Delete(ctx, "posts", "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "posts", "p1"); err != nil {
		t.Errorf("deleting absent document should succeed, got %v", err)
	}
}

func TestMemory_Query(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Create(ctx, "comments", "c1", Fields{"postId": "p1", "createdAt": "2026-01-01"})
	_ = store.Create(ctx, "comments", "c2", Fields{"postId": "p1", "createdAt": "2026-01-03"})
	_ = store.Create(ctx, "comments", "c3", Fields{"postId": "p2", "createdAt": "2026-01-02"})

	docs, err := store.Query(ctx, "comments", Where("postId", "p1").Order("createdAt", true))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].ID != "c2" || docs[1].ID != "c1" {
		t.Errorf("expected newest-first order, got %s then %s", docs[0].ID, docs[1].ID)
	}
}

func TestMemory_BatchAtomicity(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Create(ctx, "posts", "p1", Fields{"authorImage": "old"})

	batch := store.Batch()
	batch.Update("posts", "p1", Fields{"authorImage": "new"})
	batch.Update("posts", "missing", Fields{"authorImage": "new"})

	if err := batch.Commit(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from commit, got %v", err)
	}

	doc, _ := store.Get(ctx, "posts", "p1")
	if doc.Fields["authorImage"] != "old" {
		t.Errorf("failed batch must not apply partially, got %v", doc.Fields["authorImage"])
	}
}

func TestMemory_BatchDeleteAbsentIsNoop(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Create(ctx, "likes", "l1", Fields{"postId": "p1"})

	batch := store.Batch()
	batch.Delete("likes", "l1")
	batch.Delete("likes", "gone")
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if store.Count("likes") != 0 {
		t.Errorf("expected empty collection, got %d", store.Count("likes"))
	}
}

func TestMemory_WatchDeliversEvents(t *testing.T) {
	store := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx, "likes")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	_ = store.Create(ctx, "likes", "l1", Fields{"postId": "p1"})
	_ = store.Delete(ctx, "likes", "l1")

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}

	if got[0].Type != EventCreate || got[0].DocID != "l1" {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[0].After["postId"] != "p1" {
		t.Errorf("create event missing After fields: %+v", got[0])
	}
	if got[1].Type != EventDelete || got[1].Before["postId"] != "p1" {
		t.Errorf("unexpected delete event: %+v", got[1])
	}
}
