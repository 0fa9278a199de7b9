package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/cache"
	"github.com/jonwraymond/musicops/health"
	"github.com/jonwraymond/musicops/lastfm"
	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
)

// Config wires the server's collaborators.
type Config struct {
	// Cache stores tool responses (required).
	Cache *cache.SmartCache

	// Limiter enforces per-caller budgets (required).
	Limiter *resilience.RateLimiter

	// Executor runs a tool upstream (required), usually
	// (*lastfm.Client).Execute.
	Executor cache.ToolExecutor

	// Timeout bounds each upstream execution. Default: 30s.
	Timeout *resilience.Timeout

	// Resolver identifies callers. Default: address identity only.
	Resolver   *auth.Resolver
	TrustProxy bool

	Health *health.Aggregator

	// Observer supplies tracing and metrics for tool execution. Default:
	// no-op telemetry.
	Observer observe.Observer

	Reporter observe.ErrorReporter
	Logger   observe.Logger

	// PendingTimeout is the age at which in-flight fetches are swept.
	// Default: cache.DefaultPendingTimeout
	PendingTimeout time.Duration

	// MaintenanceInterval is the sweep period. Default: 1m
	MaintenanceInterval time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Server serves the tool API.
type Server struct {
	cache      *cache.SmartCache
	tools      *cache.ToolCache
	limiter    *resilience.RateLimiter
	executor   cache.ToolExecutor
	timeout    *resilience.Timeout
	resolver   *auth.Resolver
	trustProxy bool
	health     *health.Aggregator
	middleware *observe.Middleware
	reporter   observe.ErrorReporter
	logger     observe.Logger

	pendingTimeout      time.Duration
	maintenanceInterval time.Duration
	shutdownTimeout     time.Duration
	now                 func() time.Time

	handler http.Handler
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Cache == nil || cfg.Limiter == nil || cfg.Executor == nil {
		return nil, errors.New("server: cache, limiter and executor are required")
	}
	if cfg.Timeout == nil {
		cfg.Timeout = resilience.NewTimeout(resilience.TimeoutConfig{})
	}
	if cfg.Resolver == nil {
		cfg.Resolver = auth.NewResolver()
	}
	if cfg.Health == nil {
		cfg.Health = health.NewAggregator(health.AggregatorConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
		if cfg.Observer != nil {
			cfg.Logger = cfg.Observer.Logger()
		}
	}
	if cfg.Reporter == nil {
		cfg.Reporter, _ = observe.NewErrorReporter(observe.SentryConfig{})
	}
	reporter := upstreamReporter{cfg.Reporter}

	var mw *observe.Middleware
	if cfg.Observer != nil {
		var err error
		if mw, err = observe.MiddlewareFromObserver(cfg.Observer, reporter); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	} else {
		metrics, err := observe.NewMetrics(noop.NewMeterProvider().Meter("noop"))
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		mw = observe.NewMiddleware(observe.NewTracer(nil), metrics, cfg.Logger, reporter)
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = cache.DefaultPendingTimeout
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cache:               cfg.Cache,
		tools:               cache.NewToolCache(cfg.Cache, lastfm.EntryTypes(), nil),
		limiter:             cfg.Limiter,
		executor:            cfg.Executor,
		timeout:             cfg.Timeout,
		resolver:            cfg.Resolver,
		trustProxy:          cfg.TrustProxy,
		health:              cfg.Health,
		middleware:          mw,
		reporter:            reporter,
		logger:              cfg.Logger,
		pendingTimeout:      cfg.PendingTimeout,
		maintenanceInterval: cfg.MaintenanceInterval,
		shutdownTimeout:     cfg.ShutdownTimeout,
		now:                 cfg.Now,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on l until ctx is canceled, then shuts down
// gracefully. The pending-fetch sweeper runs alongside.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info(ctx, "server listening", observe.F("addr", l.Addr().String()))
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		s.logger.Info(shutdownCtx, "server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.Maintain(ctx)
		return nil
	})
	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Maintain sweeps stuck in-flight fetches every maintenance interval until
// ctx is canceled.
func (s *Server) Maintain(ctx context.Context) {
	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) int {
	n := s.cache.CleanupPending(s.pendingTimeout)
	if n > 0 {
		pendingSwept.Add(float64(n))
		s.logger.Warn(ctx, "dropped stuck in-flight fetches", observe.F("count", n))
	}
	return n
}

// upstreamReporter forwards only failures that map to a 5xx response, so
// unknown users and bad parameters do not reach the error tracker.
type upstreamReporter struct {
	observe.ErrorReporter
}

func (r upstreamReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	e := classify(err)
	if e.Status() < 500 || e.Code == CodeRequestCanceled {
		return
	}
	r.ErrorReporter.Report(ctx, err, tags)
}
