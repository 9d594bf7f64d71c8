package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

func newPropagatorFixture(t *testing.T) (*Propagator, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPropagator(store, log), store
}

func seedAuthorPost(t *testing.T, store *docstore.Memory, id, author, image string) {
	t.Helper()
	err := store.Create(context.Background(), posts.Collection, id, docstore.Fields{
		posts.FieldAuthorHandle: author,
		posts.FieldAuthorImage:  image,
	})
	if err != nil {
		t.Fatalf("seed post failed: %v", err)
	}
}

func authorImage(t *testing.T, store *docstore.Memory, id string) string {
	t.Helper()
	doc, err := store.Get(context.Background(), posts.Collection, id)
	if err != nil {
		t.Fatalf("get post failed: %v", err)
	}
	return docstore.AsString(doc.Fields[posts.FieldAuthorImage])
}

func userUpdatedEvent(handle string, before, after docstore.Fields) docstore.Event {
	return docstore.Event{
		Type:       docstore.EventUpdate,
		Collection: Collection,
		DocID:      handle,
		Before:     before,
		After:      after,
	}
}

func TestHandleUserUpdated_PropagatesImage(t *testing.T) {
	prop, store := newPropagatorFixture(t)
	ctx := context.Background()

	seedAuthorPost(t, store, "p1", "alice", "old.png")
	seedAuthorPost(t, store, "p2", "alice", "old.png")
	seedAuthorPost(t, store, "p3", "bob", "bob.png")

	ev := userUpdatedEvent("alice",
		docstore.Fields{FieldImageURL: "old.png"},
		docstore.Fields{FieldImageURL: "new.png"})
	if err := prop.HandleUserUpdated(ctx, ev); err != nil {
		t.Fatalf("HandleUserUpdated failed: %v", err)
	}

	if got := authorImage(t, store, "p1"); got != "new.png" {
		t.Errorf("p1 authorImage = %q, want new.png", got)
	}
	if got := authorImage(t, store, "p2"); got != "new.png" {
		t.Errorf("p2 authorImage = %q, want new.png", got)
	}
	if got := authorImage(t, store, "p3"); got != "bob.png" {
		t.Errorf("another author's post was touched: %q", got)
	}
}

func TestHandleUserUpdated_OtherFieldsIgnored(t *testing.T) {
	prop, store := newPropagatorFixture(t)
	ctx := context.Background()

	seedAuthorPost(t, store, "p1", "alice", "old.png")

	ev := userUpdatedEvent("alice",
		docstore.Fields{FieldImageURL: "old.png", FieldBio: "hi"},
		docstore.Fields{FieldImageURL: "old.png", FieldBio: "updated bio"})
	if err := prop.HandleUserUpdated(ctx, ev); err != nil {
		t.Fatalf("HandleUserUpdated failed: %v", err)
	}
	if got := authorImage(t, store, "p1"); got != "old.png" {
		t.Errorf("bio-only update must not touch posts, got %q", got)
	}
}

func TestHandleUserUpdated_NoPosts(t *testing.T) {
	prop, _ := newPropagatorFixture(t)

	ev := userUpdatedEvent("alice",
		docstore.Fields{FieldImageURL: "old.png"},
		docstore.Fields{FieldImageURL: "new.png"})
	if err := prop.HandleUserUpdated(context.Background(), ev); err != nil {
		t.Fatalf("update for a user with no posts failed: %v", err)
	}
}

func TestHandleUserUpdated_Replay(t *testing.T) {
	prop, store := newPropagatorFixture(t)
	ctx := context.Background()

	seedAuthorPost(t, store, "p1", "alice", "old.png")

	ev := userUpdatedEvent("alice",
		docstore.Fields{FieldImageURL: "old.png"},
		docstore.Fields{FieldImageURL: "new.png"})
	if err := prop.HandleUserUpdated(ctx, ev); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := prop.HandleUserUpdated(ctx, ev); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if got := authorImage(t, store, "p1"); got != "new.png" {
		t.Errorf("replay changed the outcome: %q", got)
	}
}
