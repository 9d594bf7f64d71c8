package triggers

import (
	"log/slog"

	"pulse/internal/cascade"
	"pulse/internal/comments"
	"pulse/internal/docstore"
	"pulse/internal/likes"
	"pulse/internal/notifications"
	"pulse/internal/posts"
	"pulse/internal/users"
)

// DefaultRegistry wires the reactive core: notification generation on
// like/comment creation, notification teardown on unlike, the post-delete
// cascade and profile-image propagation. Both delivery modes (direct
// dispatch and Kafka) run the same registry.
func DefaultRegistry(store docstore.Store, logger *slog.Logger) *Registry {
	generator := notifications.NewGenerator(store, logger)
	coordinator := cascade.NewCoordinator(store, logger)
	propagator := users.NewPropagator(store, logger)

	r := NewRegistry()
	r.OnCreate(likes.Collection, "notifications.onLikeCreated", generator.HandleLikeCreated)
	r.OnDelete(likes.Collection, "notifications.onLikeDeleted", generator.HandleLikeDeleted)
	r.OnCreate(comments.Collection, "notifications.onCommentCreated", generator.HandleCommentCreated)
	r.OnDelete(posts.Collection, "cascade.onPostDeleted", coordinator.HandlePostDeleted)
	r.OnUpdate(users.Collection, "users.onUserUpdated", propagator.HandleUserUpdated)
	return r
}
