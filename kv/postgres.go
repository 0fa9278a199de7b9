package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store shared by many processes through PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	closed atomic.Bool
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS musicops_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_musicops_kv_expires_at ON musicops_kv(expires_at);
`

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv: failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv: failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Get retrieves a live value.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM musicops_kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts a value.
func (s *PostgresStore) Put(ctx context.Context, key, value string, opts PutOptions) error {
	if err := s.check(key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO musicops_kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expiresAtMillis(s.now(), opts.TTL))
	if err != nil {
		return fmt.Errorf("kv: put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Idempotent.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM musicops_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// List returns live keys matching the prefix in lexical order.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if s.closed.Load() {
		return ListResult{}, ErrClosed
	}

	rows, err := s.pool.Query(ctx, `
		SELECT key FROM musicops_kv
		WHERE starts_with(key, $1) AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key COLLATE "C"
		LIMIT $3
	`, opts.Prefix, s.now().UnixMilli(), listLimit(opts.Limit))
	if err != nil {
		return ListResult{}, fmt.Errorf("kv: list %q: %w", opts.Prefix, err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return ListResult{}, fmt.Errorf("kv: list %q: %w", opts.Prefix, err)
	}

	result := ListResult{Keys: make([]KeyInfo, len(names))}
	for i, name := range names {
		result.Keys[i] = KeyInfo{Name: name}
	}
	return result, nil
}

// Purge deletes expired rows and reports how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM musicops_kv WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("kv: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) check(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ValidateKey(key)
}

var _ Backend = (*PostgresStore)(nil)
