// Package likes implements the like/unlike toggle. A like is stored under
// the deterministic id "userHandle#postId", so the store's keyed create makes
// a second like of the same post by the same user structurally impossible:
// concurrent toggles collapse to one winner instead of racing past an
// existence check.
package likes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

// Collection is the likes collection name.
const Collection = "likes"

// Field names of a like document.
const (
	FieldPostID     = "postId"
	FieldUserHandle = "userHandle"
	FieldCreatedAt  = "createdAt"
)

var (
	ErrAlreadyLiked = errors.New("post already liked")
	ErrNotLiked     = errors.New("post not liked")
)

// Like is a (user, post) reaction document.
type Like struct {
	ID         string `json:"likeId"`
	PostID     string `json:"postId"`
	UserHandle string `json:"userHandle"`
	CreatedAt  string `json:"createdAt"`
}

// LikeID is the keyed document id for a (user, post) pair.
func LikeID(userHandle, postID string) string {
	return userHandle + "#" + postID
}

// FromDocument decodes a stored like document.
func FromDocument(doc docstore.Document) Like {
	return Like{
		ID:         doc.ID,
		PostID:     docstore.AsString(doc.Fields[FieldPostID]),
		UserHandle: docstore.AsString(doc.Fields[FieldUserHandle]),
		CreatedAt:  docstore.AsString(doc.Fields[FieldCreatedAt]),
	}
}

// Service is the toggle engine.
type Service interface {
	// Like creates the like and bumps the post's counter, returning the
	// updated post snapshot. Fails with posts.ErrPostNotFound or
	// ErrAlreadyLiked.
	Like(ctx context.Context, userHandle, postID string) (*posts.Post, error)
	// Unlike removes the like and decrements the counter, returning the
	// updated post snapshot. Fails with posts.ErrPostNotFound or ErrNotLiked.
	Unlike(ctx context.Context, userHandle, postID string) (*posts.Post, error)
	// ListByUser returns every like placed by a user.
	ListByUser(ctx context.Context, userHandle string) ([]Like, error)
}

type service struct {
	store  docstore.Store
	cache  *posts.Cache
	logger *slog.Logger
}

// NewService creates a toggle engine.
func NewService(store docstore.Store, cache *posts.Cache, logger *slog.Logger) Service {
	return &service{store: store, cache: cache, logger: logger}
}

func (s *service) Like(ctx context.Context, userHandle, postID string) (*posts.Post, error) {
	doc, err := s.store.Get(ctx, posts.Collection, postID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	post := posts.FromDocument(doc)

	fields := docstore.Fields{
		FieldPostID:     postID,
		FieldUserHandle: userHandle,
		FieldCreatedAt:  posts.Timestamp(time.Now()),
	}
	err = s.store.Create(ctx, Collection, LikeID(userHandle, postID), fields)
	if errors.Is(err, docstore.ErrExists) {
		return nil, ErrAlreadyLiked
	}
	if err != nil {
		return nil, fmt.Errorf("insert like: %w", err)
	}

	err = s.store.Increment(ctx, posts.Collection, postID, posts.FieldLikeCount, 1)
	if errors.Is(err, docstore.ErrNotFound) {
		// Post deleted between the read and the increment; the cascade will
		// collect the like document.
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment like count: %w", err)
	}

	s.cache.Invalidate(ctx, postID)
	post.LikeCount++
	return &post, nil
}

func (s *service) Unlike(ctx context.Context, userHandle, postID string) (*posts.Post, error) {
	doc, err := s.store.Get(ctx, posts.Collection, postID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	post := posts.FromDocument(doc)

	likeID := LikeID(userHandle, postID)
	if _, err := s.store.Get(ctx, Collection, likeID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotLiked
		}
		return nil, fmt.Errorf("get like: %w", err)
	}

	// Delete before decrement. A crash between the two leaves the counter
	// one too high; that overcount is a documented hazard, not masked here.
	if err := s.store.Delete(ctx, Collection, likeID); err != nil {
		return nil, fmt.Errorf("delete like: %w", err)
	}

	err = s.store.Increment(ctx, posts.Collection, postID, posts.FieldLikeCount, -1)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("decrement like count: %w", err)
	}

	s.cache.Invalidate(ctx, postID)
	post.LikeCount--
	return &post, nil
}

func (s *service) ListByUser(ctx context.Context, userHandle string) ([]Like, error) {
	docs, err := s.store.Query(ctx, Collection, docstore.Where(FieldUserHandle, userHandle))
	if err != nil {
		return nil, fmt.Errorf("query likes: %w", err)
	}
	out := make([]Like, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	return out, nil
}
