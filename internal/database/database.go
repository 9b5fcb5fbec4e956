// Package database owns the postgres pool and the session persistence sink.
// Records are stored as JSONB blobs keyed by session id; relational schema
// detail is deliberately out of scope here.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the shared connection pool. Nil when postgres is not configured;
// callers check before writing.
var DB *pgxpool.Pool

// Connect initializes the shared pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("database: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("database: pinging postgres: %w", err)
	}
	DB = pool
	logrus.Info("connected to postgres")
	return nil
}

// Migrate creates the storage tables if they do not exist.
func Migrate(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database: pool not initialized")
	}
	_, err := DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_completions (
			session_id uuid PRIMARY KEY,
			record     jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS game_partials (
			session_id uuid PRIMARY KEY,
			state      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

// StoreCompletionRecord writes the terminal completion record for a
// session. Called exactly once per session, at terminal Result.
func StoreCompletionRecord(ctx context.Context, sessionID uuid.UUID, record interface{}) error {
	if DB == nil {
		return fmt.Errorf("database: pool not initialized")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("database: marshaling completion record: %w", err)
	}
	_, err = DB.Exec(ctx,
		`INSERT INTO game_completions (session_id, record) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, payload)
	return err
}

// UpsertPartialState writes a best-effort snapshot for a session torn down
// before its Result. The partial-persistence contract is intentionally
// loose: completeness is not guaranteed.
func UpsertPartialState(ctx context.Context, sessionID uuid.UUID, state interface{}) error {
	if DB == nil {
		return fmt.Errorf("database: pool not initialized")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("database: marshaling partial state: %w", err)
	}
	_, err = DB.Exec(ctx,
		`INSERT INTO game_partials (session_id, state) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET state = $2, updated_at = now()`,
		sessionID, payload)
	return err
}
