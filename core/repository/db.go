package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool used by the repositories
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS job_cursors (
	fine_tuning_id TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	last_completed TEXT NOT NULL DEFAULT '',
	outputs_json   TEXT NOT NULL DEFAULT '{}',
	completed      BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS job_events (
	id        BIGSERIAL PRIMARY KEY,
	job_id    TEXT NOT NULL,
	run_id    TEXT NOT NULL,
	at        TIMESTAMPTZ NOT NULL,
	step      TEXT NOT NULL,
	type      TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS job_events_job_id_at_idx ON job_events (job_id, at);

CREATE TABLE IF NOT EXISTS job_artifacts (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL,
	type       TEXT NOT NULL,
	uri        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	meta_json  TEXT NOT NULL DEFAULT '{}'
);
`

// NewDB opens a Postgres connection and verifies it is reachable
func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate creates the job state tables when they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
