package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/docstore"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrUnauthorized = errors.New("unauthorized to modify this post")
)

// Service handles post lifecycle. Deleting a post only removes the post
// document itself; dependent comments, likes and notifications are removed
// reactively by the cascade coordinator once the delete event is delivered.
type Service struct {
	store  docstore.Store
	cache  *Cache
	logger *slog.Logger
}

// NewService creates a posts service.
func NewService(store docstore.Store, cache *Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// Create inserts a new post with zeroed counters and the author's current
// image denormalized onto it.
func (s *Service) Create(ctx context.Context, authorHandle, authorImage, body string) (*Post, error) {
	p := Post{
		Body:         body,
		AuthorHandle: authorHandle,
		AuthorImage:  authorImage,
		CreatedAt:    Timestamp(time.Now()),
	}

	id, err := s.store.Insert(ctx, Collection, p.Fields())
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	p.ID = id

	s.cache.Invalidate(ctx, "")
	return &p, nil
}

// Get retrieves a single post.
func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	if p, ok := s.cache.GetPost(ctx, id); ok {
		return p, nil
	}

	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}

	p := FromDocument(doc)
	s.cache.SetPost(ctx, p)
	return &p, nil
}

// List returns the feed, newest first.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	if feed, ok := s.cache.GetFeed(ctx); ok {
		return feed, nil
	}

	docs, err := s.store.Query(ctx, Collection, docstore.Query{}.Order(FieldCreatedAt, true))
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	feed := make([]Post, 0, len(docs))
	for _, doc := range docs {
		feed = append(feed, FromDocument(doc))
	}
	s.cache.SetFeed(ctx, feed)
	return feed, nil
}

// ListByAuthor returns a user's posts, newest first.
func (s *Service) ListByAuthor(ctx context.Context, authorHandle string) ([]Post, error) {
	docs, err := s.store.Query(ctx, Collection,
		docstore.Where(FieldAuthorHandle, authorHandle).Order(FieldCreatedAt, true))
	if err != nil {
		return nil, fmt.Errorf("query posts by author: %w", err)
	}

	out := make([]Post, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	return out, nil
}

// Delete removes a post after verifying ownership. The cascade over
// dependent documents fires asynchronously from the delete event.
func (s *Service) Delete(ctx context.Context, id, requesterHandle string) error {
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}

	if docstore.AsString(doc.Fields[FieldAuthorHandle]) != requesterHandle {
		return ErrUnauthorized
	}

	if err := s.store.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.cache.Invalidate(ctx, id)
	s.logger.Info("post deleted", "post_id", id, "author", requesterHandle)
	return nil
}
