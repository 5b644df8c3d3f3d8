// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps jobs as JSONB documents. Update locks the row with
// SELECT ... FOR UPDATE so several server processes can share the table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the jobs table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS veritas_jobs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		data JSONB NOT NULL
	)`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating job schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, j Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO veritas_jobs (id, created_at, updated_at, data) VALUES ($1, $2, $3, $4)`,
		j.ID, j.CreatedAt, j.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", j.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Job, error) {
	return decodeRow(s.pool.QueryRow(ctx, `SELECT data FROM veritas_jobs WHERE id = $1`, id))
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*Job) error) (Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := decodeRow(tx.QueryRow(ctx, `SELECT data FROM veritas_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Job{}, err
	}
	prev := j.clone()
	if err := applyUpdate(&j, fn); err != nil {
		return prev, err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return Job{}, fmt.Errorf("encoding job: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE veritas_jobs SET data = $2, updated_at = $3 WHERE id = $1`,
		id, data, j.UpdatedAt); err != nil {
		return Job{}, fmt.Errorf("updating job %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("committing job %s: %w", id, err)
	}
	return j, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM veritas_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM veritas_jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := decodeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func decodeRow(row pgx.Row) (Job, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("reading job: %w", err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decoding job: %w", err)
	}
	return j, nil
}
