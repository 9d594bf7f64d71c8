package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/docstore"
	"pulse/internal/users"
)

// IdentityMiddleware resolves the caller from the X-User-Handle header set by
// the gateway after authentication, loads the profile and stashes the handle
// and current image URL in the request context. Identity verification itself
// happens upstream; this service only needs a trusted handle.
func IdentityMiddleware(store docstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle := c.GetHeader("X-User-Handle")
		if handle == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		doc, err := store.Get(c.Request.Context(), users.Collection, handle)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			c.Abort()
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			c.Abort()
			return
		}

		c.Set("handle", handle)
		c.Set("imageUrl", docstore.AsString(doc.Fields[users.FieldImageURL]))
		c.Next()
	}
}
