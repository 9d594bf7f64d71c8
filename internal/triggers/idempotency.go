package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore marks relayed events as processed so a Kafka redelivery is
// skipped before its handlers run again. Handlers are idempotent anyway; this
// only saves the redundant work and the log noise.
type IdempotencyStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewIdempotencyStore creates an idempotency store. Records expire after 24
// hours, well past any plausible redelivery window.
func NewIdempotencyStore(redisClient *redis.Client, logger *slog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		redis:  redisClient,
		ttl:    24 * time.Hour,
		logger: logger,
	}
}

func (s *IdempotencyStore) buildKey(eventID string) string {
	return "triggers:processed:" + eventID
}

// IsProcessed checks whether an event has already been handled.
func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := s.redis.Exists(ctx, s.buildKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if event is processed: %w", err)
	}
	return exists > 0, nil
}

// MarkProcessed marks an event as handled. Returns true when this call was
// the first to mark it; SET NX keeps the check-and-set atomic across
// consumers.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	success, err := s.redis.SetNX(ctx, s.buildKey(eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if !success {
		s.logger.Warn("event already processed (duplicate detected)", "event_id", eventID)
	}
	return success, nil
}
