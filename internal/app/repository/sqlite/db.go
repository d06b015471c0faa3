package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"ai-subtitler/internal/app/repository"
)

const driverName = "sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	file_size      INTEGER NOT NULL DEFAULT 0,
	file_type      TEXT NOT NULL DEFAULT '',
	file_url       TEXT NOT NULL,
	language       TEXT NOT NULL,
	prefer_primary BOOLEAN NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	eta            INTEGER,
	download_url   TEXT,
	error          TEXT,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_user_created ON conversion_jobs (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_status_created ON conversion_jobs (status, created_at);
`

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(ctx context.Context, path string) (*repository.SQLJobRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&mode=rwc", path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent job updates.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewSQLJobRepository(db, driverName), nil
}

// Migrate creates the conversion_jobs table and its indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
