// The worker owns trigger handling in production. It either consumes the
// store's change streams directly (TRIGGER_SOURCE=store), relays them onto
// Kafka (TRIGGER_SOURCE=kafka-relay), or consumes relayed events from Kafka
// (TRIGGER_SOURCE=kafka). Relay and consumer are split so the API deployment
// can scale them independently.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"pulse/internal/config"
	"pulse/internal/deadletter"
	"pulse/internal/docstore"
	"pulse/internal/logger"
	"pulse/internal/triggers"
)

func main() {
	log := logger.New("pulse-worker")
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.ValidateEnv([]string{"MONGO_URI"}); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := docstore.NewMongo(connectCtx,
		os.Getenv("MONGO_URI"),
		config.GetEnv("MONGO_DATABASE", "pulse"),
		log)
	cancel()
	if err != nil {
		log.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	registry := triggers.DefaultRegistry(store, log)

	source := config.GetEnv("TRIGGER_SOURCE", "store")
	log.Info("starting trigger worker", "source", source)

	switch source {
	case "store":
		runDispatcher(ctx, store, registry, log)
	case "kafka-relay":
		runRelay(ctx, store, registry, log)
	case "kafka":
		runConsumer(ctx, registry, log)
	default:
		log.Error("unknown TRIGGER_SOURCE", "source", source)
		os.Exit(1)
	}

	log.Info("worker exiting")
}

func runDispatcher(ctx context.Context, store docstore.Store, registry *triggers.Registry, log *slog.Logger) {
	journal, cleanup, err := newJournal(ctx, log)
	if err != nil {
		log.Error("failed to initialize dead-letter journal", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	dispatcher := triggers.NewDispatcher(store, registry, journal, log,
		config.GetEnvInt("TRIGGER_MAX_RETRIES", 3),
		config.GetEnvDuration("TRIGGER_BACKOFF", time.Second))
	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}
}

func runRelay(ctx context.Context, store docstore.Store, registry *triggers.Registry, log *slog.Logger) {
	if err := config.ValidateEnv([]string{"KAFKA_BROKERS"}); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	relay, err := triggers.NewRelay(triggers.RelayConfig{
		Brokers: os.Getenv("KAFKA_BROKERS"),
		Topic:   config.GetEnv("KAFKA_TOPIC_EVENTS", "doc-events"),
	}, store, log)
	if err != nil {
		log.Error("failed to create relay", "error", err)
		os.Exit(1)
	}
	defer relay.Close()

	if err := relay.Run(ctx, registry.Collections()); err != nil && ctx.Err() == nil {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func runConsumer(ctx context.Context, registry *triggers.Registry, log *slog.Logger) {
	if err := config.ValidateEnv([]string{"KAFKA_BROKERS"}); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", 0),
	})
	idempotency := triggers.NewIdempotencyStore(rdb, log)

	consumer, err := triggers.NewConsumer(&triggers.ConsumerConfig{
		Brokers:       os.Getenv("KAFKA_BROKERS"),
		Topic:         config.GetEnv("KAFKA_TOPIC_EVENTS", "doc-events"),
		DLQTopic:      config.GetEnv("KAFKA_TOPIC_EVENTS_DLQ", "doc-events-dlq"),
		ConsumerGroup: config.GetEnv("KAFKA_CONSUMER_GROUP", "pulse-triggers"),
		MaxRetries:    config.GetEnvInt("TRIGGER_MAX_RETRIES", 3),
	}, registry, idempotency, log)
	if err != nil {
		log.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}

func newJournal(ctx context.Context, log *slog.Logger) (deadletter.Journal, func(), error) {
	dsn := os.Getenv("DEADLETTER_DSN")
	if dsn == "" {
		log.Warn("DEADLETTER_DSN not set, dead letters are kept in memory only")
		return deadletter.NewMemory(), func() {}, nil
	}
	journal, err := deadletter.NewPostgres(ctx, dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return journal, journal.Close, nil
}
