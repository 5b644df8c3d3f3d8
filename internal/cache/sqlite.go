// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps entries in a SQLite table. It is safe for use by
// several processes sharing one database file.
type SQLiteStore struct {
	db     *sql.DB
	policy Policy
	now    func() time.Time
}

// NewSQLiteStore opens or creates the cache database at path.
func NewSQLiteStore(path string, policy Policy) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS search_cache (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		retrieved_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_search_cache_retrieved ON search_cache(retrieved_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache index: %w", err)
	}

	return &SQLiteStore{db: db, policy: policy, now: time.Now}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the entry for key unless it is missing or expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		body []byte
		ts   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, retrieved_at FROM search_cache WHERE key = ?`, key).Scan(&body, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache entry: %w", err)
	}

	e := Entry{Body: body, RetrievedAt: time.Unix(0, ts).UTC()}
	if s.policy.Expired(e, s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put upserts e and applies the eviction policy in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, key string, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO search_cache (key, body, retrieved_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, retrieved_at = excluded.retrieved_at`,
		key, e.Body, e.RetrievedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if s.policy.TTL > 0 {
		cutoff := s.now().Add(-s.policy.TTL).UnixNano()
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_cache WHERE retrieved_at < ?`, cutoff); err != nil {
			return fmt.Errorf("expiring cache entries: %w", err)
		}
	}
	if s.policy.MaxEntries > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM search_cache WHERE key IN (
			SELECT key FROM search_cache ORDER BY retrieved_at DESC LIMIT -1 OFFSET ?)`, s.policy.MaxEntries)
		if err != nil {
			return fmt.Errorf("evicting cache entries: %w", err)
		}
	}

	return tx.Commit()
}

// Len returns the number of stored entries.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}
