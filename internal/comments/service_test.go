package comments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

func newFixture(t *testing.T) (Service, *docstore.Memory, *posts.Post) {
	t.Helper()
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	post, err := posts.NewService(store, nil, log).Create(context.Background(), "alice", "alice.png", "first post")
	if err != nil {
		t.Fatalf("seed post failed: %v", err)
	}
	return NewService(store, nil), store, post
}

func TestAdd(t *testing.T) {
	svc, store, post := newFixture(t)
	ctx := context.Background()

	c, err := svc.Add(ctx, post.ID, "bob", "bob.png", "nice one")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if c.ID == "" || c.PostID != post.ID || c.Body != "nice one" {
		t.Errorf("unexpected comment: %+v", c)
	}

	doc, err := store.Get(ctx, posts.Collection, post.ID)
	if err != nil {
		t.Fatalf("get post failed: %v", err)
	}
	if got := docstore.AsInt(doc.Fields[posts.FieldCommentCount]); got != 1 {
		t.Errorf("expected commentCount=1, got %d", got)
	}

	stored, err := store.Get(ctx, Collection, c.ID)
	if err != nil {
		t.Fatalf("comment document not stored: %v", err)
	}
	if docstore.AsString(stored.Fields[FieldAuthorImage]) != "bob.png" {
		t.Errorf("author image not denormalized: %+v", stored.Fields)
	}
}

func TestAdd_PostMissing(t *testing.T) {
	svc, _, _ := newFixture(t)

	if _, err := svc.Add(context.Background(), "missing", "bob", "bob.png", "hi"); !errors.Is(err, posts.ErrPostNotFound) {
		t.Errorf("expected ErrPostNotFound, got %v", err)
	}
}

func TestListByPost(t *testing.T) {
	svc, _, post := newFixture(t)
	ctx := context.Background()

	first, err := svc.Add(ctx, post.ID, "bob", "bob.png", "first")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	// Distinct createdAt so the newest-first order is deterministic.
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Add(ctx, post.ID, "carol", "carol.png", "second")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := svc.ListByPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListByPost failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", got[0].ID, got[1].ID)
	}

	none, err := svc.ListByPost(ctx, "other")
	if err != nil {
		t.Fatalf("ListByPost failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no comments, got %+v", none)
	}
}
