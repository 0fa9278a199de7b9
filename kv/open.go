package kv

import (
	"context"
	"fmt"
	"strings"
)

// Open returns a Backend selected by dsn:
//
//   - "" or "memory:"            MemoryStore with defaults
//   - "sqlite:<path>"            SQLiteStore (":memory:" allowed)
//   - "postgres://..." or "postgresql://..."  PostgresStore
func Open(ctx context.Context, dsn string) (Backend, error) {
	switch {
	case dsn == "" || dsn == "memory:":
		return NewMemoryStore(MemoryConfig{})
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite path is empty", ErrUnknownDSN)
		}
		return NewSQLiteStore(path)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDSN, dsn)
	}
}
