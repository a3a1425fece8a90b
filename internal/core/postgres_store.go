package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runHistorySchema = `
CREATE TABLE IF NOT EXISTS run_history (
    id          UUID PRIMARY KEY,
    algorithm   TEXT        NOT NULL,
    file_name   TEXT        NOT NULL DEFAULT '',
    params      JSONB       NOT NULL DEFAULT '{}'::jsonb,
    rows        INTEGER     NOT NULL,
    columns     INTEGER     NOT NULL,
    status      TEXT        NOT NULL,
    error_code  TEXT        NOT NULL DEFAULT '',
    duration_ms BIGINT      NOT NULL,
    client_ip   TEXT        NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS run_history_created_at_idx ON run_history (created_at DESC);
`

// PostgresRunStore keeps run metadata in the run_history table.
type PostgresRunStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRunStore creates the run_history table if needed.
func NewPostgresRunStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresRunStore, error) {
	if _, err := pool.Exec(ctx, runHistorySchema); err != nil {
		return nil, fmt.Errorf("create run_history: %w", err)
	}
	return &PostgresRunStore{pool: pool}, nil
}

func (s *PostgresRunStore) Record(ctx context.Context, run Run) error {
	params := run.Params
	if len(params) == 0 {
		params = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_history
		    (id, algorithm, file_name, params, rows, columns, status, error_code, duration_ms, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, string(run.Algorithm), run.FileName, params, run.Rows, run.Columns,
		string(run.Status), run.ErrorCode, run.DurationMS, run.ClientIP, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresRunStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, algorithm, file_name, params, rows, columns, status, error_code, duration_ms, client_ip, created_at
		FROM run_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		var algorithm, status string
		err := row.Scan(&r.ID, &algorithm, &r.FileName, &r.Params, &r.Rows, &r.Columns,
			&status, &r.ErrorCode, &r.DurationMS, &r.ClientIP, &r.CreatedAt)
		r.Algorithm = Algorithm(algorithm)
		r.Status = RunStatus(status)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

func (s *PostgresRunStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM run_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
