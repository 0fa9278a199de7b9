package cache

import (
	"context"
	"encoding/json"
	"time"
)

// NullCache is a Cache that stores nothing. Every Fetch calls the fetcher
// directly with no coalescing. Use it where no KV store is available.
type NullCache struct{}

// NewNullCache returns a NullCache.
func NewNullCache() NullCache {
	return NullCache{}
}

func (NullCache) Get(context.Context, EntryType, string) (json.RawMessage, bool) {
	return nil, false
}

func (NullCache) Set(context.Context, EntryType, string, any) {}

func (NullCache) Fetch(ctx context.Context, _ EntryType, _ string, fetch Fetcher, _ ...FetchOption) (any, error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}
	return fetch(ctx)
}

func (NullCache) Invalidate(context.Context, EntryType, string) {}

func (NullCache) Stats(context.Context) Stats {
	return Stats{EntriesByType: map[EntryType]int{}}
}

func (NullCache) CleanupPending(time.Duration) int {
	return 0
}

var _ Cache = NullCache{}
