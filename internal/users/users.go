// Package users owns the users collection (keyed by handle) and the
// propagation of profile-image changes onto the denormalized authorImage
// field of the user's posts.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulse/internal/docstore"
	"pulse/internal/posts"
)

// Collection is the users collection name. Documents are keyed by handle.
const Collection = "users"

// Field names of a user document.
const (
	FieldHandle    = "handle"
	FieldEmail     = "email"
	FieldImageURL  = "imageUrl"
	FieldBio       = "bio"
	FieldWebsite   = "website"
	FieldLocation  = "location"
	FieldCreatedAt = "createdAt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrHandleTaken  = errors.New("handle already taken")
)

// User is the source of truth for imageUrl; posts carry an eventually
// consistent copy.
type User struct {
	Handle    string `json:"handle"`
	Email     string `json:"email"`
	ImageURL  string `json:"imageUrl"`
	Bio       string `json:"bio,omitempty"`
	Website   string `json:"website,omitempty"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// FromDocument decodes a stored user document.
func FromDocument(doc docstore.Document) User {
	f := doc.Fields
	return User{
		Handle:    doc.ID,
		Email:     docstore.AsString(f[FieldEmail]),
		ImageURL:  docstore.AsString(f[FieldImageURL]),
		Bio:       docstore.AsString(f[FieldBio]),
		Website:   docstore.AsString(f[FieldWebsite]),
		Location:  docstore.AsString(f[FieldLocation]),
		CreatedAt: docstore.AsString(f[FieldCreatedAt]),
	}
}

// UpdateDetailsRequest carries the editable profile fields. Nil means
// "leave unchanged".
type UpdateDetailsRequest struct {
	Bio      *string `json:"bio"`
	Website  *string `json:"website"`
	Location *string `json:"location"`
	ImageURL *string `json:"imageUrl"`
}

type Service interface {
	// Get returns a user's profile or ErrUserNotFound.
	Get(ctx context.Context, handle string) (*User, error)
	// Create registers a profile under an unused handle.
	Create(ctx context.Context, handle, email, imageURL string) (*User, error)
	// UpdateDetails merges the provided fields into the profile. Image
	// propagation to the user's posts fires reactively from the resulting
	// update event.
	UpdateDetails(ctx context.Context, handle string, req UpdateDetailsRequest) error
}

type service struct {
	store docstore.Store
}

func NewService(store docstore.Store) Service {
	return &service{store: store}
}

func (s *service) Get(ctx context.Context, handle string) (*User, error) {
	doc, err := s.store.Get(ctx, Collection, handle)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := FromDocument(doc)
	return &u, nil
}

func (s *service) Create(ctx context.Context, handle, email, imageURL string) (*User, error) {
	u := User{
		Handle:    handle,
		Email:     email,
		ImageURL:  imageURL,
		CreatedAt: posts.Timestamp(time.Now()),
	}
	fields := docstore.Fields{
		FieldHandle:    u.Handle,
		FieldEmail:     u.Email,
		FieldImageURL:  u.ImageURL,
		FieldCreatedAt: u.CreatedAt,
	}
	err := s.store.Create(ctx, Collection, handle, fields)
	if errors.Is(err, docstore.ErrExists) {
		return nil, ErrHandleTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *service) UpdateDetails(ctx context.Context, handle string, req UpdateDetailsRequest) error {
	fields := docstore.Fields{}
	if req.Bio != nil {
		fields[FieldBio] = *req.Bio
	}
	if req.Website != nil {
		fields[FieldWebsite] = *req.Website
	}
	if req.Location != nil {
		fields[FieldLocation] = *req.Location
	}
	if req.ImageURL != nil {
		fields[FieldImageURL] = *req.ImageURL
	}
	if len(fields) == 0 {
		return nil
	}

	err := s.store.UpdateFields(ctx, Collection, handle, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
