package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

// RecordRepository persists analysis records in PostgreSQL, JSON document
// plus indexed columns, upserted with ON CONFLICT.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Insert(ctx context.Context, rec *domain.AnalysisRecord) error {
	return r.upsert(ctx, rec)
}

func (r *RecordRepository) Replace(ctx context.Context, rec *domain.AnalysisRecord) error {
	return r.upsert(ctx, rec)
}

func (r *RecordRepository) upsert(ctx context.Context, rec *domain.AnalysisRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	var completed sql.NullTime
	if rec.CompletedAt != nil {
		completed = sql.NullTime{Time: rec.CompletedAt.UTC(), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO analysis_records
	(id, file_hash, status, verdict, initiated_at, completed_at, record_json)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	status=EXCLUDED.status,
	verdict=EXCLUDED.verdict,
	completed_at=EXCLUDED.completed_at,
	record_json=EXCLUDED.record_json
`, rec.ID, rec.File.Hash, rec.Status, rec.Verdict, rec.InitiatedAt.UTC(), completed, string(payload))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	return r.queryOne(ctx, `SELECT record_json FROM analysis_records WHERE id = $1`, string(id))
}

func (r *RecordRepository) GetByFileHash(ctx context.Context, hash string) (*domain.AnalysisRecord, error) {
	return r.queryOne(ctx, `
SELECT record_json FROM analysis_records
WHERE file_hash = $1
ORDER BY initiated_at DESC
LIMIT 1`, hash)
}

func (r *RecordRepository) queryOne(ctx context.Context, q string, arg any) (*domain.AnalysisRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return unmarshalRecord(payload)
}

func (r *RecordRepository) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT record_json FROM analysis_records
ORDER BY initiated_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest records: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnalysisRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := unmarshalRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *RecordRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM analysis_records
WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func unmarshalRecord(payload string) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.ModuleResults == nil {
		rec.ModuleResults = map[string]domain.ModuleOutput{}
	}
	return &rec, nil
}
