// Package kv defines the key-value store contract consumed by the cache and
// rate limiter, plus adapters for in-process, SQLite and PostgreSQL storage.
//
// The contract mirrors an eventually-consistent, network-backed map: string
// keys and values, optional per-write TTL, and prefix listing. Callers must not
// assume read-your-writes across processes.
//
// # Adapters
//
//   - MemoryStore: bounded in-process store backed by ristretto.
//   - SQLiteStore: single-node persistent store backed by modernc.org/sqlite.
//   - PostgresStore: shared store backed by a pgx connection pool.
//
// Open selects an adapter from a DSN:
//
//	store, err := kv.Open(ctx, "sqlite:/var/lib/musicops/kv.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package kv
