package cascade

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"pulse/internal/comments"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/notifications"
	"pulse/internal/posts"
)

func seed(t *testing.T, store *docstore.Memory, collection, id string, fields docstore.Fields) {
	t.Helper()
	if err := store.Create(context.Background(), collection, id, fields); err != nil {
		t.Fatalf("seed %s/%s failed: %v", collection, id, err)
	}
}

func TestHandlePostDeleted(t *testing.T) {
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := NewCoordinator(store, log)
	ctx := context.Background()

	// Dependents of the deleted post p1, plus documents belonging to p2 that
	// must survive untouched.
	seed(t, store, comments.Collection, "c1", docstore.Fields{comments.FieldPostID: "p1"})
	seed(t, store, comments.Collection, "c2", docstore.Fields{comments.FieldPostID: "p1"})
	seed(t, store, comments.Collection, "c3", docstore.Fields{comments.FieldPostID: "p2"})
	seed(t, store, likes.Collection, "bob#p1", docstore.Fields{likes.FieldPostID: "p1"})
	seed(t, store, likes.Collection, "bob#p2", docstore.Fields{likes.FieldPostID: "p2"})
	seed(t, store, notifications.Collection, "n1", docstore.Fields{notifications.FieldPostID: "p1"})
	seed(t, store, posts.Collection, "p2", docstore.Fields{posts.FieldAuthorHandle: "alice"})

	ev := docstore.Event{Type: docstore.EventDelete, Collection: posts.Collection, DocID: "p1"}
	if err := coord.HandlePostDeleted(ctx, ev); err != nil {
		t.Fatalf("HandlePostDeleted failed: %v", err)
	}

	for _, check := range []struct {
		collection string
		id         string
	}{
		{comments.Collection, "c1"},
		{comments.Collection, "c2"},
		{likes.Collection, "bob#p1"},
		{notifications.Collection, "n1"},
	} {
		if _, err := store.Get(ctx, check.collection, check.id); err == nil {
			t.Errorf("%s/%s should have been cascaded away", check.collection, check.id)
		}
	}

	// Documents referencing other posts are untouched.
	if _, err := store.Get(ctx, comments.Collection, "c3"); err != nil {
		t.Errorf("comment of another post was deleted: %v", err)
	}
	if _, err := store.Get(ctx, likes.Collection, "bob#p2"); err != nil {
		t.Errorf("like of another post was deleted: %v", err)
	}
	if _, err := store.Get(ctx, posts.Collection, "p2"); err != nil {
		t.Errorf("unrelated post was deleted: %v", err)
	}
}

func TestHandlePostDeleted_Replay(t *testing.T) {
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := NewCoordinator(store, log)
	ctx := context.Background()

	seed(t, store, comments.Collection, "c1", docstore.Fields{comments.FieldPostID: "p1"})

	ev := docstore.Event{Type: docstore.EventDelete, Collection: posts.Collection, DocID: "p1"}
	if err := coord.HandlePostDeleted(ctx, ev); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	// A redelivered event finds nothing left and succeeds.
	if err := coord.HandlePostDeleted(ctx, ev); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if store.Count(comments.Collection) != 0 {
		t.Errorf("expected empty comments collection")
	}
}

func TestHandlePostDeleted_NoDependents(t *testing.T) {
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := NewCoordinator(store, log)

	ev := docstore.Event{Type: docstore.EventDelete, Collection: posts.Collection, DocID: "lonely"}
	if err := coord.HandlePostDeleted(context.Background(), ev); err != nil {
		t.Fatalf("delete of a post with no dependents failed: %v", err)
	}
}
