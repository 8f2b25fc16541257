package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id           TEXT PRIMARY KEY,
	file_hash    TEXT NOT NULL,
	status       TEXT NOT NULL,
	verdict      TEXT NOT NULL,
	initiated_at INTEGER NOT NULL,
	completed_at INTEGER,
	record_json  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_records_file_hash
	ON analysis_records(file_hash, initiated_at);
`

// Connect opens (or creates) the database file and ensures the schema.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The driver is in-process; one writer at a time keeps SQLITE_BUSY away.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return db, nil
}
