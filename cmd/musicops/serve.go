package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/config"
	"github.com/jonwraymond/musicops/health"
	"github.com/jonwraymond/musicops/lastfm"
	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
	"github.com/jonwraymond/musicops/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, c *cli) (err error) {
	cfg := c.cfg
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); err == nil {
			err = cerr
		}
	}()

	client, err := lastfm.New(lastfm.Config{
		APIKey:            cfg.LastFM.APIKey,
		BaseURL:           cfg.LastFM.BaseURL,
		RequestsPerSecond: cfg.LastFM.RequestsPerSecond,
		Retry: &resilience.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Instruments:  a.observer.Instruments(),
		},
		UserAgent: "musicops/" + version,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	resolver, err := newResolver(cfg.Auth)
	if err != nil {
		return err
	}

	checks := health.NewAggregator(health.AggregatorConfig{Logger: a.logger})
	checks.Register(health.NewStoreChecker(a.store, health.StoreCheckerConfig{}))

	srv, err := server.New(server.Config{
		Cache:               a.cache,
		Limiter:             a.limiter,
		Executor:            client.Execute,
		Timeout:             resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.Server.RequestTimeout}),
		Resolver:            resolver,
		TrustProxy:          cfg.Auth.TrustProxy,
		Health:              checks,
		Observer:            a.observer,
		Reporter:            a.reporter,
		Logger:              a.logger,
		PendingTimeout:      cfg.Cache.PendingTimeout,
		MaintenanceInterval: cfg.Server.MaintenanceInterval,
		ShutdownTimeout:     cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "starting musicops",
		observe.F("version", version),
		observe.F("kv", kvScheme(cfg.KV.DSN)),
		observe.F("jwt", cfg.Auth.JWTSecret != ""),
		observe.F("api_keys", len(cfg.Auth.APIKeys)),
	)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// newResolver enables bearer tokens when a secret is configured and API
// keys when any are listed. Callers without credentials are identified by
// address.
func newResolver(cfg config.AuthConfig) (*auth.Resolver, error) {
	var auths []auth.Authenticator
	if cfg.JWTSecret != "" {
		jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		})
		if err != nil {
			return nil, err
		}
		auths = append(auths, jwtAuth)
	}
	if len(cfg.APIKeys) > 0 {
		auths = append(auths, auth.NewAPIKeyAuthenticator(auth.NewMemoryAPIKeyStore(cfg.APIKeys...)))
	}
	return auth.NewResolver(auths...), nil
}

// kvScheme returns the backend kind of dsn without credentials.
func kvScheme(dsn string) string {
	scheme, _, ok := strings.Cut(dsn, ":")
	if !ok || scheme == "" {
		return "memory"
	}
	return scheme
}
