package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id           VARCHAR(64) PRIMARY KEY,
	file_hash    VARCHAR(128) NOT NULL,
	status       VARCHAR(16) NOT NULL,
	verdict      VARCHAR(16) NOT NULL,
	initiated_at DATETIME NOT NULL,
	completed_at DATETIME NULL,
	record_json  MEDIUMTEXT NOT NULL,
	INDEX idx_analysis_records_file_hash (file_hash, initiated_at)
) CHARACTER SET utf8mb4;
`

// Connect opens a MySQL pool, verifies connectivity, and ensures the schema.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure mysql schema: %w", err)
	}
	return db, nil
}
