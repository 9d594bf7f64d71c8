package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The journal lives in Postgres rather than the document store on purpose:
// dead letters are most needed exactly when the store is misbehaving.
const schema = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL,
	handler     TEXT NOT NULL,
	collection  TEXT NOT NULL,
	doc_id      TEXT NOT NULL,
	event       JSONB NOT NULL,
	error       TEXT NOT NULL,
	failed_at   TIMESTAMPTZ NOT NULL
)`

// Postgres is a pgx-backed Journal.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects to Postgres and ensures the dead_letters table exists.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create dead_letters table: %w", err)
	}

	logger.Info("dead-letter journal connected")
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Record implements Journal.
func (p *Postgres) Record(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	const q = `
		INSERT INTO dead_letters (event_id, handler, collection, doc_id, event, error, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err = p.pool.Exec(ctx, q,
		rec.EventID, rec.Handler, rec.Event.Collection, rec.Event.DocID,
		payload, rec.Error, rec.FailedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}

	p.logger.Warn("event dead-lettered",
		"event_id", rec.EventID,
		"handler", rec.Handler,
		"collection", rec.Event.Collection,
		"doc_id", rec.Event.DocID)
	return nil
}
