package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// MaxSizeMB bounds the total size of stored keys and values.
	// Default: 64
	MaxSizeMB int64

	// MaxEntries is the expected number of entries, used to size the
	// admission counters.
	// Default: 10000
	MaxEntries int64
}

// MemoryStore is a bounded in-process Store backed by ristretto.
//
// Writes may be dropped when the store is under admission pressure, which
// matches the eventually-consistent contract of Store. A key index is kept
// alongside the ristretto cache so that List can serve prefix queries.
type MemoryStore struct {
	cache *ristretto.Cache

	mu     sync.RWMutex
	index  map[string]time.Time // key -> expiry, zero when unbounded
	closed bool
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(config MemoryConfig) (*MemoryStore, error) {
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 64
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}

	// NumCounters should be ~10x the number of entries.
	numCounters := config.MaxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     config.MaxSizeMB * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &MemoryStore{
		cache: cache,
		index: make(map[string]time.Time),
	}, nil
}

// Get retrieves a value. Returns ("", false, nil) on miss or expiry.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(ctx, key); err != nil {
		return "", false, err
	}

	val, found := s.cache.Get(key)
	if !found {
		s.forget(key)
		return "", false, nil
	}

	str, ok := val.(string)
	if !ok {
		s.cache.Del(key)
		s.forget(key)
		return "", false, nil
	}
	return str, true, nil
}

// Put stores a value. A write rejected by the admission policy is dropped
// silently.
func (s *MemoryStore) Put(ctx context.Context, key, value string, opts PutOptions) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	ttl := normalizeTTL(opts.TTL)
	cost := int64(len(key) + len(value))
	if !s.cache.SetWithTTL(key, value, cost, ttl) {
		return nil
	}
	// Make the write visible to the next Get from this process.
	s.cache.Wait()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.index[key] = expiresAt
	s.mu.Unlock()
	return nil
}

// Delete removes a key. Idempotent.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	s.cache.Del(key)
	s.cache.Wait()
	s.forget(key)
	return nil
}

// List returns live keys matching the prefix in lexical order.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	now := time.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ListResult{}, ErrClosed
	}
	names := make([]string, 0)
	for key, expiresAt := range s.index {
		if !expiresAt.IsZero() && now.After(expiresAt) {
			delete(s.index, key)
			continue
		}
		if strings.HasPrefix(key, opts.Prefix) {
			names = append(names, key)
		}
	}
	s.mu.Unlock()

	sort.Strings(names)

	limit := listLimit(opts.Limit)
	result := ListResult{Keys: make([]KeyInfo, 0, min(limit, len(names)))}
	for _, name := range names {
		if len(result.Keys) >= limit {
			break
		}
		// Drop index entries for values ristretto has evicted.
		if _, found := s.cache.Get(name); !found {
			s.forget(name)
			continue
		}
		result.Keys = append(result.Keys, KeyInfo{Name: name})
	}
	return result, nil
}

// Close releases the ristretto cache.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.index = make(map[string]time.Time)
	s.cache.Close()
	return nil
}

func (s *MemoryStore) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) forget(key string) {
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
}

var _ Backend = (*MemoryStore)(nil)
