package likes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/posts"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler { return &Handler{svc: svc} }

// POST /posts/:id/like
func (h *Handler) Like(c *gin.Context) {
	handle := c.GetString("handle")
	postID := c.Param("id")

	post, err := h.svc.Like(c.Request.Context(), handle, postID)
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
	case errors.Is(err, ErrAlreadyLiked):
		c.JSON(http.StatusConflict, gin.H{"error": "post already liked"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to like"})
	default:
		c.JSON(http.StatusOK, post)
	}
}

// DELETE /posts/:id/like
func (h *Handler) Unlike(c *gin.Context) {
	handle := c.GetString("handle")
	postID := c.Param("id")

	post, err := h.svc.Unlike(c.Request.Context(), handle, postID)
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
	case errors.Is(err, ErrNotLiked):
		c.JSON(http.StatusConflict, gin.H{"error": "post not liked"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unlike"})
	default:
		c.JSON(http.StatusOK, post)
	}
}
