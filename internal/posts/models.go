package posts

import (
	"time"

	"pulse/internal/docstore"
)

// Collection is the posts collection name.
const Collection = "posts"

// Field names of a post document.
const (
	FieldBody         = "body"
	FieldAuthorHandle = "authorHandle"
	FieldAuthorImage  = "authorImage"
	FieldCreatedAt    = "createdAt"
	FieldLikeCount    = "likeCount"
	FieldCommentCount = "commentCount"
)

// Post is a post with its denormalized author image and counters. The
// counters are maintained reactively; they mirror the number of like and
// comment documents referencing the post once cascades have settled.
type Post struct {
	ID           string `json:"postId"`
	Body         string `json:"body"`
	AuthorHandle string `json:"authorHandle"`
	AuthorImage  string `json:"authorImage"`
	CreatedAt    string `json:"createdAt"`
	LikeCount    int64  `json:"likeCount"`
	CommentCount int64  `json:"commentCount"`
}

// FromDocument decodes a stored post document.
func FromDocument(doc docstore.Document) Post {
	f := doc.Fields
	return Post{
		ID:           doc.ID,
		Body:         docstore.AsString(f[FieldBody]),
		AuthorHandle: docstore.AsString(f[FieldAuthorHandle]),
		AuthorImage:  docstore.AsString(f[FieldAuthorImage]),
		CreatedAt:    docstore.AsString(f[FieldCreatedAt]),
		LikeCount:    docstore.AsInt(f[FieldLikeCount]),
		CommentCount: docstore.AsInt(f[FieldCommentCount]),
	}
}

// Fields encodes the post for storage.
func (p Post) Fields() docstore.Fields {
	return docstore.Fields{
		FieldBody:         p.Body,
		FieldAuthorHandle: p.AuthorHandle,
		FieldAuthorImage:  p.AuthorImage,
		FieldCreatedAt:    p.CreatedAt,
		FieldLikeCount:    p.LikeCount,
		FieldCommentCount: p.CommentCount,
	}
}

// Timestamp is the stored representation of creation times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Body string `json:"body" binding:"required"`
}

// PostResponse wraps a single post.
type PostResponse struct {
	Success bool  `json:"success"`
	Data    *Post `json:"data,omitempty"`
}

// ErrorResponse is the error payload for post endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
