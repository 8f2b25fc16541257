package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id           TEXT PRIMARY KEY,
	file_hash    TEXT NOT NULL,
	status       TEXT NOT NULL,
	verdict      TEXT NOT NULL,
	initiated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	record_json  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_records_file_hash
	ON analysis_records(file_hash, initiated_at);
`

// Connect opens a PostgreSQL pool, verifies connectivity, and ensures the
// schema.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return db, nil
}
