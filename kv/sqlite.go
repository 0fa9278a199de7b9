package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a persistent Store backed by SQLite.
//
// Expired rows are invisible to reads and removed by Purge.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	closed atomic.Bool
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock overrides the clock used for expiry. Intended for tests.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases consistent and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("kv: failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: failed to create schema: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get retrieves a live value.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts a value.
func (s *SQLiteStore) Put(ctx context.Context, key, value string, opts PutOptions) error {
	if err := s.check(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAtMillis(s.now(), opts.TTL))
	if err != nil {
		return fmt.Errorf("kv: put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// List returns live keys matching the prefix in lexical order.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if s.closed.Load() {
		return ListResult{}, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE substr(key, 1, length(?1)) = ?1 AND (expires_at IS NULL OR expires_at > ?2)
		ORDER BY key
		LIMIT ?3
	`, opts.Prefix, s.now().UnixMilli(), listLimit(opts.Limit))
	if err != nil {
		return ListResult{}, fmt.Errorf("kv: list %q: %w", opts.Prefix, err)
	}
	defer rows.Close()

	var result ListResult
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return ListResult{}, fmt.Errorf("kv: list %q: %w", opts.Prefix, err)
		}
		result.Keys = append(result.Keys, KeyInfo{Name: name})
	}
	return result, rows.Err()
}

// Purge deletes expired rows and reports how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("kv: purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) check(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ValidateKey(key)
}

// expiresAtMillis returns nil for unbounded entries so the column stays NULL.
func expiresAtMillis(now time.Time, ttl time.Duration) any {
	ttl = normalizeTTL(ttl)
	if ttl == 0 {
		return nil
	}
	return now.Add(ttl).UnixMilli()
}

var _ Backend = (*SQLiteStore)(nil)
