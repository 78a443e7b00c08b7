package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"blitzai/internal/job"
)

// Querier is the narrow pgx surface the postgres store needs. *pgxpool.Pool
// satisfies it; tests supply fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps one row per record in a job_records table while
// preserving the wholesale Save semantics of the Store contract: every Save
// replaces the full set.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps an existing pgx pool or compatible querier.
func NewPostgresStore(db Querier) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the backing table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS job_records (
    id         TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Load reads the persisted set in insertion order. Rows whose document fails
// to parse are skipped rather than surfaced as errors.
func (s *PostgresStore) Load(ctx context.Context) ([]job.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT record FROM job_records ORDER BY created_at, id;`)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var records []job.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		var rec job.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}
	return records, nil
}

// Save replaces the full set. Upserting by id keeps the primary key stable for
// records that survived the read-modify-write cycle.
func (s *PostgresStore) Save(ctx context.Context, records []job.Record) error {
	keep := make([]string, 0, len(records))
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("store: encode record %s: %w", rec.ID, err)
		}
		query := `
INSERT INTO job_records (id, record, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record;
`
		if _, err := s.db.Exec(ctx, query, rec.ID, raw, rec.CreatedAt); err != nil {
			return fmt.Errorf("store: upsert record %s: %w", rec.ID, err)
		}
		keep = append(keep, rec.ID)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM job_records WHERE NOT (id = ANY($1));`, keep); err != nil {
		return fmt.Errorf("store: prune records: %w", err)
	}
	return nil
}

// Delete removes one record by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM job_records WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
