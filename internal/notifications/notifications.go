// Package notifications derives notification documents from like and comment
// events. A notification's id always equals the id of the like or comment
// that produced it, so replayed events overwrite the same document instead of
// duplicating it, and deleting the source maps directly onto deleting the
// notification.
package notifications

import (
	"pulse/internal/docstore"
)

// Collection is the notifications collection name.
const Collection = "notifications"

// Field names of a notification document.
const (
	FieldRecipient = "recipient"
	FieldSender    = "sender"
	FieldType      = "type"
	FieldPostID    = "postId"
	FieldRead      = "read"
	FieldCreatedAt = "createdAt"
)

// Notification types.
const (
	TypeLike    = "like"
	TypeComment = "comment"
)

// Notification is a fully derived document: created reactively from a like
// or comment, deleted reactively when the like is removed or the post is
// deleted.
type Notification struct {
	ID        string `json:"notificationId"`
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Type      string `json:"type"`
	PostID    string `json:"postId"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// FromDocument decodes a stored notification document.
func FromDocument(doc docstore.Document) Notification {
	f := doc.Fields
	return Notification{
		ID:        doc.ID,
		Recipient: docstore.AsString(f[FieldRecipient]),
		Sender:    docstore.AsString(f[FieldSender]),
		Type:      docstore.AsString(f[FieldType]),
		PostID:    docstore.AsString(f[FieldPostID]),
		Read:      docstore.AsBool(f[FieldRead]),
		CreatedAt: docstore.AsString(f[FieldCreatedAt]),
	}
}
