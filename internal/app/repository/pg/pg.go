package pg

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"ai-subtitler/internal/app/repository"
)

const driverName = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	file_size      BIGINT NOT NULL DEFAULT 0,
	file_type      TEXT NOT NULL DEFAULT '',
	file_url       TEXT NOT NULL,
	language       TEXT NOT NULL,
	prefer_primary BOOLEAN NOT NULL DEFAULT FALSE,
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	eta            INTEGER,
	download_url   TEXT,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_user_created ON conversion_jobs (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_status_created ON conversion_jobs (status, created_at);
`

// Open connects to Postgres with dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*repository.SQLJobRepository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewJobRepository(db), nil
}

// NewJobRepository wraps an existing Postgres connection.
func NewJobRepository(db *sql.DB) *repository.SQLJobRepository {
	return repository.NewSQLJobRepository(db, driverName)
}

// Migrate creates the conversion_jobs table and its indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
