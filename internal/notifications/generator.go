package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/comments"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/posts"
)

// Generator holds the reactive handlers for like/comment events. Every
// handler is an idempotent function of (event, current store state): a
// missing post is a valid no-op, creation is an overwrite under a
// deterministic id, deletion of an absent document succeeds. Replays are
// therefore always safe.
type Generator struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewGenerator creates a notification generator.
func NewGenerator(store docstore.Store, logger *slog.Logger) *Generator {
	return &Generator{store: store, logger: logger}
}

// HandleLikeCreated reacts to a like-created event.
func (g *Generator) HandleLikeCreated(ctx context.Context, ev docstore.Event) error {
	return g.create(ctx, ev.DocID, TypeLike,
		docstore.AsString(ev.After[likes.FieldPostID]),
		docstore.AsString(ev.After[likes.FieldUserHandle]))
}

// HandleCommentCreated reacts to a comment-created event.
func (g *Generator) HandleCommentCreated(ctx context.Context, ev docstore.Event) error {
	return g.create(ctx, ev.DocID, TypeComment,
		docstore.AsString(ev.After[comments.FieldPostID]),
		docstore.AsString(ev.After[comments.FieldAuthorHandle]))
}

// HandleLikeDeleted deletes the derived notification. Absence is expected
// when the post-delete cascade got there first.
func (g *Generator) HandleLikeDeleted(ctx context.Context, ev docstore.Event) error {
	if err := g.store.Delete(ctx, Collection, ev.DocID); err != nil {
		return fmt.Errorf("delete notification %s: %w", ev.DocID, err)
	}
	return nil
}

func (g *Generator) create(ctx context.Context, sourceID, typ, postID, sender string) error {
	doc, err := g.store.Get(ctx, posts.Collection, postID)
	if errors.Is(err, docstore.ErrNotFound) {
		// The post may already be gone; the event is still consumed.
		g.logger.Debug("notification skipped, post missing", "post_id", postID, "type", typ)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get post %s: %w", postID, err)
	}

	recipient := docstore.AsString(doc.Fields[posts.FieldAuthorHandle])
	if recipient == sender {
		// Self-notifications are suppressed.
		return nil
	}

	fields := docstore.Fields{
		FieldRecipient: recipient,
		FieldSender:    sender,
		FieldType:      typ,
		FieldPostID:    postID,
		FieldRead:      false,
		FieldCreatedAt: posts.Timestamp(time.Now()),
	}
	if err := g.store.Put(ctx, Collection, sourceID, fields); err != nil {
		return fmt.Errorf("put notification %s: %w", sourceID, err)
	}

	g.logger.Info("notification created",
		"notification_id", sourceID,
		"type", typ,
		"recipient", recipient,
		"sender", sender)
	return nil
}
