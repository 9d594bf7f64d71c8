package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"pulse/internal/config"
	"pulse/internal/consul"
	"pulse/internal/deadletter"
	"pulse/internal/docstore"
	"pulse/internal/logger"
	"pulse/internal/posts"
	"pulse/internal/server"
	"pulse/internal/triggers"
)

func main() {
	log := logger.New("pulse-api")
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := newStore(ctx, log)
	if err != nil {
		log.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cache := posts.NewCache(
		config.GetEnv("REDIS_ADDR", "localhost:6379"),
		config.GetEnv("REDIS_PASSWORD", ""),
		config.GetEnvInt("REDIS_DB", 0),
		log,
	)

	// Dev mode runs the trigger handlers in-process; with the Mongo store a
	// separate worker owns them (see cmd/worker).
	if config.GetEnv("TRIGGERS_INPROC", inprocDefault()) == "true" {
		journal, jcleanup, err := newJournal(ctx, log)
		if err != nil {
			log.Error("failed to initialize dead-letter journal", "error", err)
			os.Exit(1)
		}
		defer jcleanup()

		registry := triggers.DefaultRegistry(store, log)
		dispatcher := triggers.NewDispatcher(store, registry, journal, log,
			config.GetEnvInt("TRIGGER_MAX_RETRIES", 3),
			config.GetEnvDuration("TRIGGER_BACKOFF", time.Second))
		go func() {
			if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("dispatcher stopped", "error", err)
			}
		}()
		log.Info("trigger dispatcher running in-process")
	}

	apiServer := server.NewHTTPServer(server.Deps{Store: store, Cache: cache, Logger: log})

	deregister := registerWithConsul(log)

	done := make(chan bool, 1)
	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")
		stop()

		deregister()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", "error", err)
		}
		done <- true
	}()

	log.Info("pulse-api listening", "addr", apiServer.Addr)
	if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server error", "error", err)
		os.Exit(1)
	}

	<-done
	log.Info("Graceful shutdown complete.")
}

func inprocDefault() string {
	if config.GetEnv("STORE_DRIVER", "mongo") == "memory" {
		return "true"
	}
	return "false"
}

func newStore(ctx context.Context, log *slog.Logger) (docstore.Store, func(), error) {
	switch driver := config.GetEnv("STORE_DRIVER", "mongo"); driver {
	case "memory":
		log.Warn("using in-memory store; data will not survive a restart")
		return docstore.NewMemory(), func() {}, nil
	case "mongo":
		if err := config.ValidateEnv([]string{"MONGO_URI"}); err != nil {
			return nil, nil, err
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := docstore.NewMongo(connectCtx,
			os.Getenv("MONGO_URI"),
			config.GetEnv("MONGO_DATABASE", "pulse"),
			log)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
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

// registerWithConsul registers the API with Consul when CONSUL_HTTP_ADDR is
// set and returns the matching deregistration func.
func registerWithConsul(log *slog.Logger) func() {
	consulAddr := os.Getenv("CONSUL_HTTP_ADDR")
	if consulAddr == "" {
		return func() {}
	}

	host := config.GetEnv("API_SERVICE_HOST", "localhost")
	port := config.GetEnvInt("PORT", 8080)

	client, err := consul.NewClient(consulAddr, os.Getenv("CONSUL_HTTP_TOKEN"))
	if err != nil {
		log.Error("Failed to create Consul client", "error", err)
		return func() {}
	}

	// Static service ID to prevent duplicate registrations on restart.
	serviceID := fmt.Sprintf("pulse-api-%s", host)
	_ = client.Deregister(serviceID)

	err = client.Register(&consul.ServiceConfig{
		ID:      serviceID,
		Name:    "pulse-api",
		Address: host,
		Port:    port,
		Tags:    []string{"posts", "social", "api"},
		Check: &consul.HealthCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health", host, port),
			Interval: "10s",
			Timeout:  "3s",
		},
	})
	if err != nil {
		log.Error("Failed to register with Consul", "error", err)
		return func() {}
	}

	log.Info("Registered with Consul", "service_id", serviceID)
	return func() {
		if err := client.Deregister(serviceID); err != nil {
			log.Error("Failed to deregister from Consul", "error", err)
		} else {
			log.Info("Deregistered from Consul")
		}
	}
}
