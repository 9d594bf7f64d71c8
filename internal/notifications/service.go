package notifications

import (
	"context"
	"fmt"

	"pulse/internal/docstore"
)

type Service interface {
	// ListForUser returns a user's notifications, newest first.
	ListForUser(ctx context.Context, recipient string) ([]Notification, error)
	// MarkRead flags the given notifications as read in one batch.
	MarkRead(ctx context.Context, ids []string) error
}

type service struct {
	store docstore.Store
}

func NewService(store docstore.Store) Service {
	return &service{store: store}
}

func (s *service) ListForUser(ctx context.Context, recipient string) ([]Notification, error) {
	docs, err := s.store.Query(ctx, Collection,
		docstore.Where(FieldRecipient, recipient).Order(FieldCreatedAt, true))
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}

	out := make([]Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	return out, nil
}

func (s *service) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := s.store.Batch()
	for _, id := range ids {
		batch.Update(Collection, id, docstore.Fields{FieldRead: true})
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
