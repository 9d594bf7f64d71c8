package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/likes"
	"pulse/internal/notifications"
	"pulse/internal/posts"
)

// Handler composes the profile endpoints from the user, post, like and
// notification services.
type Handler struct {
	svc           Service
	posts         *posts.Service
	likes         likes.Service
	notifications notifications.Service
}

func NewHandler(svc Service, p *posts.Service, l likes.Service, n notifications.Service) *Handler {
	return &Handler{svc: svc, posts: p, likes: l, notifications: n}
}

// GET /users/:handle returns the public profile with the user's posts.
func (h *Handler) GetProfile(c *gin.Context) {
	handle := c.Param("handle")

	user, err := h.svc.Get(c.Request.Context(), handle)
	if errors.Is(err, ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	authored, err := h.posts.ListByAuthor(c.Request.Context(), handle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "posts": authored})
}

// GET /me returns the caller's profile with likes and notifications.
func (h *Handler) GetAuthenticated(c *gin.Context) {
	handle := c.GetString("handle")
	ctx := c.Request.Context()

	user, err := h.svc.Get(ctx, handle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	userLikes, err := h.likes.ListByUser(ctx, handle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get likes"})
		return
	}
	notifs, err := h.notifications.ListForUser(ctx, handle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credentials":   user,
		"likes":         userLikes,
		"notifications": notifs,
	})
}

// PATCH /me updates profile details. An imageUrl change fans out to the
// user's posts reactively.
func (h *Handler) UpdateDetails(c *gin.Context) {
	handle := c.GetString("handle")

	var req UpdateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err := h.svc.UpdateDetails(c.Request.Context(), handle, req)
	switch {
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update details"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "details updated successfully"})
	}
}
