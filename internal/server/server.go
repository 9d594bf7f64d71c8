// Package server assembles the HTTP API on top of the domain services.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pulse/internal/comments"
	"pulse/internal/config"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/notifications"
	"pulse/internal/posts"
	"pulse/internal/users"
)

// Deps are the constructed dependencies the router needs.
type Deps struct {
	Store  docstore.Store
	Cache  *posts.Cache
	Logger *slog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{config.GetEnv("CORS_ORIGIN", "http://localhost:5173")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-User-Handle"},
		AllowCredentials: true,
	}))

	postsService := posts.NewService(deps.Store, deps.Cache, deps.Logger)
	likesService := likes.NewService(deps.Store, deps.Cache, deps.Logger)
	commentsService := comments.NewService(deps.Store, deps.Cache)
	notificationsService := notifications.NewService(deps.Store)
	usersService := users.NewService(deps.Store)

	postsHandler := posts.NewHandler(postsService)
	likesHandler := likes.NewHandler(likesService)
	commentsHandler := comments.NewHandler(commentsService)
	notificationsHandler := notifications.NewHandler(notificationsService)
	usersHandler := users.NewHandler(usersService, postsService, likesService, notificationsService)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pulse-api"})
	})

	identity := IdentityMiddleware(deps.Store)

	// Public reads.
	r.GET("/posts", postsHandler.GetFeed)
	r.GET("/posts/:id", postsHandler.GetPost)
	r.GET("/posts/:id/comments", commentsHandler.ListByPost)
	r.GET("/users/:handle", usersHandler.GetProfile)

	// Authenticated writes and personal reads.
	authed := r.Group("")
	authed.Use(identity)
	{
		authed.POST("/posts", postsHandler.CreatePost)
		authed.DELETE("/posts/:id", postsHandler.DeletePost)
		authed.POST("/posts/:id/comments", commentsHandler.Add)
		authed.POST("/posts/:id/like", likesHandler.Like)
		authed.DELETE("/posts/:id/like", likesHandler.Unlike)

		authed.GET("/me", usersHandler.GetAuthenticated)
		authed.PATCH("/me", usersHandler.UpdateDetails)
		authed.POST("/notifications/read", notificationsHandler.MarkRead)
	}

	return r
}

// NewHTTPServer wraps the router in an http.Server with production timeouts.
func NewHTTPServer(deps Deps) *http.Server {
	port := config.GetEnvInt("PORT", 8080)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(deps),
		ReadTimeout:       config.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      config.GetEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       config.GetEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
