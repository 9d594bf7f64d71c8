package comments

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

// AddCommentRequest is the request body for commenting on a post.
type AddCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// POST /posts/:id/comments
func (h *Handler) Add(c *gin.Context) {
	handle := c.GetString("handle")
	image := c.GetString("imageUrl")
	postID := c.Param("id")

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	comment, err := h.svc.Add(c.Request.Context(), postID, handle, image, req.Body)
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to comment"})
	default:
		c.JSON(http.StatusCreated, comment)
	}
}

// GET /posts/:id/comments
func (h *Handler) ListByPost(c *gin.Context) {
	comments, err := h.svc.ListByPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list comments"})
		return
	}
	c.JSON(http.StatusOK, comments)
}
