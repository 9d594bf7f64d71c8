package posts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for posts
type Handler struct {
	service *Service
}

// NewHandler creates a new posts handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetFeed handles GET /posts
func (h *Handler) GetFeed(c *gin.Context) {
	feed, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to load feed"})
		return
	}
	c.JSON(http.StatusOK, feed)
}

// CreatePost handles POST /posts
func (h *Handler) CreatePost(c *gin.Context) {
	handle := c.GetString("handle")
	image := c.GetString("imageUrl")

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid request body: " + err.Error()})
		return
	}

	post, err := h.service.Create(c.Request.Context(), handle, image, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to create post"})
		return
	}

	c.JSON(http.StatusCreated, PostResponse{Success: true, Data: post})
}

// GetPost handles GET /posts/:id
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to get post"})
		return
	}
	c.JSON(http.StatusOK, PostResponse{Success: true, Data: post})
}

// DeletePost handles DELETE /posts/:id
func (h *Handler) DeletePost(c *gin.Context) {
	handle := c.GetString("handle")

	err := h.service.Delete(c.Request.Context(), c.Param("id"), handle)
	switch {
	case errors.Is(err, ErrPostNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Post not found"})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Success: false, Error: "Unauthorized"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to delete post"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Post deleted successfully"})
	}
}
