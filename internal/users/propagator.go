package users

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

// Propagator reacts to user-update events and pushes a changed imageUrl onto
// the authorImage field of every post the user authored. Any other profile
// change is ignored.
type Propagator struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewPropagator creates a profile propagation coordinator.
func NewPropagator(store docstore.Store, logger *slog.Logger) *Propagator {
	return &Propagator{store: store, logger: logger}
}

// HandleUserUpdated compares the before/after snapshots and batch-updates the
// user's posts if and only if imageUrl changed. Replays are harmless: the
// batch rewrites the same value.
func (p *Propagator) HandleUserUpdated(ctx context.Context, ev docstore.Event) error {
	before := docstore.AsString(ev.Before[FieldImageURL])
	after := docstore.AsString(ev.After[FieldImageURL])
	if before == after {
		return nil
	}

	handle := ev.DocID
	docs, err := p.store.Query(ctx, posts.Collection, docstore.Where(posts.FieldAuthorHandle, handle))
	if err != nil {
		return fmt.Errorf("query posts by author %s: %w", handle, err)
	}
	if len(docs) == 0 {
		return nil
	}

	batch := p.store.Batch()
	for _, doc := range docs {
		batch.Update(posts.Collection, doc.ID, docstore.Fields{posts.FieldAuthorImage: after})
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("propagate image for %s: %w", handle, err)
	}

	p.logger.Info("profile image propagated", "handle", handle, "posts", len(docs))
	return nil
}
