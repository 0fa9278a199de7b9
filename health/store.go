package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/musicops/kv"
)

// StoreCheckerConfig configures the KV store probe.
type StoreCheckerConfig struct {
	// Name is reported by Name(). Default: "kv"
	Name string

	// SlowThreshold marks the store degraded when a round trip takes longer.
	// Default: 500ms
	SlowThreshold time.Duration
}

// StoreChecker probes a kv.Store with a put/get/delete round trip on a
// throwaway key. The cache and the rate limiter both depend on the store, but
// each masks store failures, so this probe is the only place they surface.
type StoreChecker struct {
	store  kv.Store
	config StoreCheckerConfig
}

// NewStoreChecker creates a checker for store.
func NewStoreChecker(store kv.Store, config StoreCheckerConfig) *StoreChecker {
	if config.Name == "" {
		config.Name = "kv"
	}
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = 500 * time.Millisecond
	}
	return &StoreChecker{store: store, config: config}
}

// Name returns the name of this checker.
func (c *StoreChecker) Name() string {
	return c.config.Name
}

// Check performs the round trip.
func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	key := "health:probe:" + uuid.NewString()
	want := start.UTC().Format(time.RFC3339Nano)

	if err := c.store.Put(ctx, key, want, kv.PutOptions{TTL: kv.MinTTL}); err != nil {
		return Unhealthy("kv put failed", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	got, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Unhealthy("kv get failed", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return Unhealthy("kv delete failed", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}

	elapsed := time.Since(start)
	details := map[string]any{"latency_ms": elapsed.Milliseconds()}

	// Eventually consistent stores may drop or delay a write; that is not an
	// outage.
	if !ok || got != want {
		return Degraded("kv write not visible on read").WithDetails(details)
	}
	if elapsed > c.config.SlowThreshold {
		return Degraded(fmt.Sprintf("kv round trip slow: %s", elapsed.Round(time.Millisecond))).WithDetails(details)
	}
	return Healthy("kv round trip ok").WithDetails(details)
}
