package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/musicops/kv"
	"github.com/jonwraymond/musicops/observe"
)

// Config configures a SmartCache.
type Config struct {
	// Store holds the entries (required).
	Store kv.Store

	// Policy maps entry types to TTLs. Default: DefaultPolicy().
	Policy Policy

	// Version is the entry format version. Default: DefaultVersion.
	Version string

	Logger      observe.Logger
	Instruments *observe.Instruments
	Tracer      trace.Tracer

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// SmartCache is a Cache backed by a kv.Store with in-process coalescing of
// concurrent fetches.
type SmartCache struct {
	store       kv.Store
	policy      Policy
	version     string
	logger      observe.Logger
	instruments *observe.Instruments
	tracer      trace.Tracer
	now         func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// pendingRequest tracks one running fetcher.
type pendingRequest struct {
	started time.Time
}

// New creates a SmartCache. It panics if cfg.Store is nil.
func New(cfg Config) *SmartCache {
	if cfg.Store == nil {
		panic("cache: nil store")
	}
	if cfg.Policy.TTLs == nil && cfg.Policy.DefaultTTL == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SmartCache{
		store:       cfg.Store,
		policy:      cfg.Policy,
		version:     cfg.Version,
		logger:      cfg.Logger,
		instruments: cfg.Instruments,
		tracer:      cfg.Tracer,
		now:         cfg.Now,
		pending:     make(map[string]*pendingRequest),
	}
}

// Get returns the cached payload. Expired entries and entries written under
// another version are deleted before reporting a miss.
func (c *SmartCache) Get(ctx context.Context, t EntryType, identifier string) (json.RawMessage, bool) {
	key := Key(t, identifier)
	l := c.read(ctx, key)

	switch l.state {
	case lookupHit:
		c.instruments.CacheLookup(ctx, string(t), observe.LookupHit)
		return l.entry.Data, true
	case lookupStale:
		c.instruments.CacheLookup(ctx, string(t), observe.LookupStale)
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn(ctx, "cache: failed to delete stale entry", observe.F("key", key), observe.F("error", err))
		}
	default:
		c.instruments.CacheLookup(ctx, string(t), observe.LookupMiss)
	}
	return nil, false
}

// read never fails; storage and decode errors are reported as a miss.
func (c *SmartCache) read(ctx context.Context, key string) lookup {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache: read failed", observe.F("key", key), observe.F("error", err))
		return lookup{}
	}
	if !ok {
		return lookup{}
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Debug(ctx, "cache: malformed entry", observe.F("key", key), observe.F("error", err))
		return lookup{}
	}
	if !e.Valid(c.now(), c.version) {
		return lookup{entry: e, state: lookupStale}
	}
	return lookup{entry: e, state: lookupHit}
}

// Set writes data with the entry type's TTL as both the logical expiry and
// the provider-level expiry. Failures are logged and dropped.
func (c *SmartCache) Set(ctx context.Context, t EntryType, identifier string, data any) {
	key := Key(t, identifier)

	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn(ctx, "cache: value is not serializable", observe.F("key", key), observe.F("error", err))
		return
	}

	ttl := c.policy.TTL(t)
	now := c.now()
	raw, err := json.Marshal(Entry{
		Data:      payload,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		Version:   c.version,
	})
	if err != nil {
		c.logger.Warn(ctx, "cache: failed to encode entry", observe.F("key", key), observe.F("error", err))
		return
	}

	if err := c.store.Put(ctx, key, string(raw), kv.PutOptions{TTL: ttl}); err != nil {
		c.logger.Warn(ctx, "cache: write failed", observe.F("key", key), observe.F("error", err))
	}
}

// Fetch serves a valid entry or runs fetch, sharing one in-flight call among
// all concurrent callers for the same key.
//
// The shared call runs detached from any single caller's cancellation; a
// caller whose ctx ends stops waiting and gets ctx.Err().
func (c *SmartCache) Fetch(ctx context.Context, t EntryType, identifier string, fetch Fetcher, opts ...FetchOption) (any, error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}

	o := applyFetchOptions(opts)
	if !o.forceRefresh {
		if data, ok := c.Get(ctx, t, identifier); ok {
			return data, nil
		}
	}

	pkey := pendingKey(t, identifier)
	detached := context.WithoutCancel(ctx)
	leader := false

	ch := c.group.DoChan(pkey, func() (any, error) {
		leader = true
		req := c.track(detached, pkey)
		defer c.untrack(detached, pkey, req)

		return c.runFetch(detached, t, identifier, fetch)
	})

	select {
	case res := <-ch:
		if !leader {
			c.instruments.CacheFetch(ctx, string(t), observe.FetchCoalesced)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SmartCache) runFetch(ctx context.Context, t EntryType, identifier string, fetch Fetcher) (any, error) {
	ctx, span := c.tracer.Start(ctx, "cache.fetch", trace.WithAttributes(
		attribute.String("cache.entry_type", string(t)),
	))
	defer span.End()

	val, err := fetch(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.instruments.CacheFetch(ctx, string(t), observe.FetchError)
		return nil, err
	}

	c.Set(ctx, t, identifier, val)
	c.instruments.CacheFetch(ctx, string(t), observe.FetchOK)
	return val, nil
}

func (c *SmartCache) track(ctx context.Context, pkey string) *pendingRequest {
	req := &pendingRequest{started: c.now()}
	c.mu.Lock()
	c.pending[pkey] = req
	c.mu.Unlock()
	c.instruments.PendingDelta(ctx, 1)
	return req
}

// untrack removes req unless CleanupPending already replaced or dropped it.
func (c *SmartCache) untrack(ctx context.Context, pkey string, req *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[pkey] == req {
		delete(c.pending, pkey)
		c.instruments.PendingDelta(ctx, -1)
	}
}

// CleanupPending drops in-flight fetches older than maxAge. Later callers for
// those keys start a new fetch instead of joining the stuck one.
func (c *SmartCache) CleanupPending(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultPendingTimeout
	}
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for pkey, req := range c.pending {
		if req.started.Before(cutoff) {
			delete(c.pending, pkey)
			c.group.Forget(pkey)
			removed++
		}
	}
	if removed > 0 {
		c.instruments.PendingDelta(context.Background(), -int64(removed))
	}
	return removed
}

// Invalidate deletes entries of type t whose identifier starts with prefix.
func (c *SmartCache) Invalidate(ctx context.Context, t EntryType, prefix string) {
	listPrefix := typePrefix(t) + prefix
	for {
		res, err := c.store.List(ctx, kv.ListOptions{Prefix: listPrefix})
		if err != nil {
			c.logger.Warn(ctx, "cache: invalidate list failed", observe.F("prefix", listPrefix), observe.F("error", err))
			return
		}
		for _, k := range res.Keys {
			if err := c.store.Delete(ctx, k.Name); err != nil {
				c.logger.Warn(ctx, "cache: invalidate delete failed", observe.F("key", k.Name), observe.F("error", err))
				return
			}
		}
		if len(res.Keys) < kv.DefaultListLimit {
			return
		}
	}
}

// Stats lists cache keys and counts them per entry type. A listing failure
// yields zero counts.
func (c *SmartCache) Stats(ctx context.Context) Stats {
	stats := Stats{EntriesByType: make(map[EntryType]int)}

	c.mu.Lock()
	stats.PendingRequests = len(c.pending)
	c.mu.Unlock()

	res, err := c.store.List(ctx, kv.ListOptions{Prefix: keyPrefix})
	if err != nil {
		c.logger.Warn(ctx, "cache: stats list failed", observe.F("error", err))
		return stats
	}
	for _, k := range res.Keys {
		t, ok := entryTypeOf(k.Name)
		if !ok {
			continue
		}
		stats.TotalEntries++
		stats.EntriesByType[t]++
	}
	return stats
}

// PendingKeys returns the dedupe keys of in-flight fetches, sorted.
func (c *SmartCache) PendingKeys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	slices.Sort(keys)
	return keys
}

var _ Cache = (*SmartCache)(nil)
