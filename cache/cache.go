package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultPendingTimeout is the age after which CleanupPending drops an
// in-flight fetch.
const DefaultPendingTimeout = 5 * time.Minute

// Sentinel errors for cache operations.
var (
	ErrNilFetcher = errors.New("cache: fetcher is nil")
	ErrDecode     = errors.New("cache: failed to decode cached value")
)

// Fetcher performs one upstream call. The returned value must be
// JSON-serializable.
type Fetcher func(ctx context.Context) (any, error)

// Stats is a best-effort snapshot of cache contents.
type Stats struct {
	TotalEntries    int               `json:"totalEntries"`
	EntriesByType   map[EntryType]int `json:"entriesByType"`
	PendingRequests int               `json:"pendingRequests"`
}

// FetchOption configures a single Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	forceRefresh bool
}

// WithForceRefresh bypasses the cached entry. The fetcher runs (or an
// in-flight fetch is joined) and its result overwrites the entry.
func WithForceRefresh() FetchOption {
	return func(o *fetchOptions) {
		o.forceRefresh = true
	}
}

func applyFetchOptions(opts []FetchOption) fetchOptions {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Cache is a typed response cache over a key-value store.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Get, Set, Invalidate and Stats never fail; storage faults
//     degrade to a miss or a no-op. Fetch propagates fetcher errors verbatim
//     and caches nothing on failure.
//   - Coalescing: Fetch runs at most one fetcher per key at a time within a
//     process.
type Cache interface {
	// Get returns the cached payload for (t, identifier).
	Get(ctx context.Context, t EntryType, identifier string) (json.RawMessage, bool)

	// Set stores data for (t, identifier) with the entry type's TTL.
	Set(ctx context.Context, t EntryType, identifier string, data any)

	// Fetch returns the cached payload as json.RawMessage on a hit, or the
	// fetcher's value on a miss.
	Fetch(ctx context.Context, t EntryType, identifier string, fetch Fetcher, opts ...FetchOption) (any, error)

	// Invalidate deletes entries of type t whose identifier starts with
	// prefix. An empty prefix clears the entire type.
	Invalidate(ctx context.Context, t EntryType, prefix string)

	// Stats reports entry counts and in-flight fetches.
	Stats(ctx context.Context) Stats

	// CleanupPending drops in-flight fetches older than maxAge and returns
	// how many were removed. maxAge <= 0 means DefaultPendingTimeout.
	CleanupPending(maxAge time.Duration) int
}
