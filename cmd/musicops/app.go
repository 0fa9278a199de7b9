package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/musicops/cache"
	"github.com/jonwraymond/musicops/config"
	"github.com/jonwraymond/musicops/kv"
	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
)

// app holds the components shared by the server and the admin commands.
type app struct {
	cfg      *config.Config
	store    kv.Backend
	observer observe.Observer
	reporter observe.ErrorReporter
	logger   observe.Logger
	cache    *cache.SmartCache
	limiter  *resilience.RateLimiter
}

// newApp opens the store and builds the cache and limiter over it. Admin
// commands pass telemetry=false so they export no traces or metrics.
func newApp(ctx context.Context, cfg *config.Config, telemetry bool) (*app, error) {
	obsCfg := cfg.Observe
	if !telemetry {
		obsCfg.Tracing.Enabled = false
		obsCfg.Metrics.Enabled = false
	}
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return nil, err
	}
	logger := obs.Logger()

	reporter, err := observe.NewErrorReporter(cfg.Sentry)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	store, err := kv.Open(ctx, cfg.KV.DSN)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		observer: obs,
		reporter: reporter,
		logger:   logger,
		cache: cache.New(cache.Config{
			Store:       store,
			Version:     cfg.Cache.Version,
			Logger:      logger,
			Instruments: obs.Instruments(),
			Tracer:      obs.Tracer(),
		}),
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Store:             store,
			RequestsPerMinute: cfg.RateLimit.PerMinute,
			RequestsPerHour:   cfg.RateLimit.PerHour,
			Logger:            logger,
			Instruments:       obs.Instruments(),
		}),
	}
	return a, nil
}

// close flushes telemetry and releases the store.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.reporter.Flush(2 * time.Second)
	return errors.Join(a.observer.Shutdown(ctx), a.store.Close())
}
