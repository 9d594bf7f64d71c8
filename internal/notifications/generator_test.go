package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"pulse/internal/comments"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/posts"
)

func newGenerator(t *testing.T) (*Generator, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGenerator(store, log), store
}

func seedPost(t *testing.T, store *docstore.Memory, id, author string) {
	t.Helper()
	err := store.Create(context.Background(), posts.Collection, id, docstore.Fields{
		posts.FieldBody:         "hello",
		posts.FieldAuthorHandle: author,
		posts.FieldLikeCount:    int64(0),
		posts.FieldCommentCount: int64(0),
	})
	if err != nil {
		t.Fatalf("seed post failed: %v", err)
	}
}

func likeCreatedEvent(likeID, postID, sender string) docstore.Event {
	return docstore.Event{
		Type:       docstore.EventCreate,
		Collection: likes.Collection,
		DocID:      likeID,
		After: docstore.Fields{
			likes.FieldPostID:     postID,
			likes.FieldUserHandle: sender,
		},
	}
}

func TestHandleLikeCreated(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()
	seedPost(t, store, "p1", "alice")

	likeID := likes.LikeID("bob", "p1")
	if err := gen.HandleLikeCreated(ctx, likeCreatedEvent(likeID, "p1", "bob")); err != nil {
		t.Fatalf("HandleLikeCreated failed: %v", err)
	}

	doc, err := store.Get(ctx, Collection, likeID)
	if err != nil {
		t.Fatalf("notification not created: %v", err)
	}
	n := FromDocument(doc)
	if n.Recipient != "alice" || n.Sender != "bob" || n.Type != TypeLike || n.PostID != "p1" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.Read {
		t.Error("new notification must be unread")
	}
}

func TestHandleLikeCreated_SelfLikeSuppressed(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()
	seedPost(t, store, "p1", "alice")

	likeID := likes.LikeID("alice", "p1")
	if err := gen.HandleLikeCreated(ctx, likeCreatedEvent(likeID, "p1", "alice")); err != nil {
		t.Fatalf("HandleLikeCreated failed: %v", err)
	}
	if store.Count(Collection) != 0 {
		t.Error("self-like must not produce a notification")
	}
}

func TestHandleLikeCreated_PostGone(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()

	ev := likeCreatedEvent(likes.LikeID("bob", "gone"), "gone", "bob")
	if err := gen.HandleLikeCreated(ctx, ev); err != nil {
		t.Fatalf("event against a deleted post must be consumed, got %v", err)
	}
	if store.Count(Collection) != 0 {
		t.Error("no notification expected when the post is gone")
	}
}

func TestHandleLikeCreated_ReplayIdempotent(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()
	seedPost(t, store, "p1", "alice")

	ev := likeCreatedEvent(likes.LikeID("bob", "p1"), "p1", "bob")
	for i := 0; i < 3; i++ {
		if err := gen.HandleLikeCreated(ctx, ev); err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
	}
	if got := store.Count(Collection); got != 1 {
		t.Errorf("replays must overwrite, expected 1 notification, got %d", got)
	}
}

func TestHandleCommentCreated(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()
	seedPost(t, store, "p1", "alice")

	ev := docstore.Event{
		Type:       docstore.EventCreate,
		Collection: comments.Collection,
		DocID:      "c1",
		After: docstore.Fields{
			comments.FieldPostID:       "p1",
			comments.FieldAuthorHandle: "bob",
			comments.FieldBody:         "nice",
		},
	}
	if err := gen.HandleCommentCreated(ctx, ev); err != nil {
		t.Fatalf("HandleCommentCreated failed: %v", err)
	}

	doc, err := store.Get(ctx, Collection, "c1")
	if err != nil {
		t.Fatalf("notification not created: %v", err)
	}
	n := FromDocument(doc)
	if n.Type != TypeComment || n.Recipient != "alice" || n.Sender != "bob" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestHandleLikeDeleted(t *testing.T) {
	gen, store := newGenerator(t)
	ctx := context.Background()
	seedPost(t, store, "p1", "alice")

	likeID := likes.LikeID("bob", "p1")
	if err := gen.HandleLikeCreated(ctx, likeCreatedEvent(likeID, "p1", "bob")); err != nil {
		t.Fatalf("HandleLikeCreated failed: %v", err)
	}

	ev := docstore.Event{Type: docstore.EventDelete, Collection: likes.Collection, DocID: likeID}
	if err := gen.HandleLikeDeleted(ctx, ev); err != nil {
		t.Fatalf("HandleLikeDeleted failed: %v", err)
	}
	if _, err := store.Get(ctx, Collection, likeID); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("notification should be gone, got %v", err)
	}

	// Replaying the delete is a no-op, not an error.
	if err := gen.HandleLikeDeleted(ctx, ev); err != nil {
		t.Errorf("replayed delete failed: %v", err)
	}
}
