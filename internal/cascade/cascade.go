// Package cascade removes every document that references a deleted post.
// The store has no foreign keys and no cascading deletes, so the dependent
// collections are enumerated here explicitly and cleared in one batch.
package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/comments"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/notifications"
)

// dependent lists the collections holding references to a post, with the
// field each one uses for the reference.
var dependent = []struct {
	collection string
	refField   string
}{
	{comments.Collection, comments.FieldPostID},
	{likes.Collection, likes.FieldPostID},
	{notifications.Collection, notifications.FieldPostID},
}

// Coordinator reacts to post-delete events.
type Coordinator struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewCoordinator creates a cascade coordinator.
func NewCoordinator(store docstore.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger}
}

// HandlePostDeleted stages the deletion of all comments, likes and
// notifications referencing the post, then commits once. Each dependent
// collection is queried fresh, so a replayed event simply finds nothing left
// to delete. A failed commit leaves everything in place and the error
// propagates to the dispatcher for retry.
func (c *Coordinator) HandlePostDeleted(ctx context.Context, ev docstore.Event) error {
	postID := ev.DocID
	batch := c.store.Batch()
	staged := 0

	for _, dep := range dependent {
		docs, err := c.store.Query(ctx, dep.collection, docstore.Where(dep.refField, postID))
		if err != nil {
			return fmt.Errorf("cascade query %s: %w", dep.collection, err)
		}
		for _, doc := range docs {
			batch.Delete(dep.collection, doc.ID)
		}
		staged += len(docs)
	}

	if staged == 0 {
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("cascade commit for post %s: %w", postID, err)
	}

	c.logger.Info("cascade completed", "post_id", postID, "deleted", staged)
	return nil
}
