package comments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

// Collection is the comments collection name.
const Collection = "comments"

// Field names of a comment document.
const (
	FieldBody         = "body"
	FieldPostID       = "postId"
	FieldAuthorHandle = "authorHandle"
	FieldAuthorImage  = "authorImage"
	FieldCreatedAt    = "createdAt"
)

// Comment is immutable after creation; only the post-delete cascade removes it.
type Comment struct {
	ID           string `json:"commentId"`
	PostID       string `json:"postId"`
	Body         string `json:"body"`
	AuthorHandle string `json:"authorHandle"`
	AuthorImage  string `json:"authorImage"`
	CreatedAt    string `json:"createdAt"`
}

// FromDocument decodes a stored comment document.
func FromDocument(doc docstore.Document) Comment {
	f := doc.Fields
	return Comment{
		ID:           doc.ID,
		PostID:       docstore.AsString(f[FieldPostID]),
		Body:         docstore.AsString(f[FieldBody]),
		AuthorHandle: docstore.AsString(f[FieldAuthorHandle]),
		AuthorImage:  docstore.AsString(f[FieldAuthorImage]),
		CreatedAt:    docstore.AsString(f[FieldCreatedAt]),
	}
}

type Service interface {
	// Add creates a comment and bumps the post's comment counter. Fails with
	// posts.ErrPostNotFound when the post is absent.
	Add(ctx context.Context, postID, authorHandle, authorImage, body string) (*Comment, error)
	// ListByPost returns a post's comments, newest first.
	ListByPost(ctx context.Context, postID string) ([]Comment, error)
}

type service struct {
	store docstore.Store
	cache *posts.Cache
}

func NewService(store docstore.Store, cache *posts.Cache) Service {
	return &service{store: store, cache: cache}
}

func (s *service) Add(ctx context.Context, postID, authorHandle, authorImage, body string) (*Comment, error) {
	// Increment first, then insert. If the insert fails the counter
	// overcounts relative to actual comments; that ordering and its failure
	// consequence are deliberate.
	err := s.store.Increment(ctx, posts.Collection, postID, posts.FieldCommentCount, 1)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment comment count: %w", err)
	}

	c := Comment{
		ID:           uuid.NewString(),
		PostID:       postID,
		Body:         body,
		AuthorHandle: authorHandle,
		AuthorImage:  authorImage,
		CreatedAt:    posts.Timestamp(time.Now()),
	}
	fields := docstore.Fields{
		FieldPostID:       c.PostID,
		FieldBody:         c.Body,
		FieldAuthorHandle: c.AuthorHandle,
		FieldAuthorImage:  c.AuthorImage,
		FieldCreatedAt:    c.CreatedAt,
	}
	if err := s.store.Create(ctx, Collection, c.ID, fields); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	s.cache.Invalidate(ctx, postID)
	return &c, nil
}

func (s *service) ListByPost(ctx context.Context, postID string) ([]Comment, error) {
	docs, err := s.store.Query(ctx, Collection,
		docstore.Where(FieldPostID, postID).Order(FieldCreatedAt, true))
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}

	out := make([]Comment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	return out, nil
}
