package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/observe"
)

// EnvPrefix prefixes every environment variable: server.addr is read from
// MUSICOPS_SERVER_ADDR.
const EnvPrefix = "MUSICOPS"

// Config holds application configuration.
type Config struct {
	Server    ServerConfig
	KV        KVConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	LastFM    LastFMConfig
	Auth      AuthConfig
	Observe   observe.Config
	Sentry    observe.SentryConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string

	// RequestTimeout bounds one upstream tool call.
	RequestTimeout time.Duration

	ShutdownTimeout time.Duration

	// MaintenanceInterval is how often stuck in-flight fetches are swept.
	MaintenanceInterval time.Duration
}

// KVConfig selects the storage backend; see kv.Open for DSN forms.
type KVConfig struct {
	DSN string
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Version is stamped on every entry. Changing it orphans old entries.
	Version string

	PendingTimeout time.Duration
}

// RateLimitConfig configures the per-caller fixed windows.
type RateLimitConfig struct {
	PerMinute int
	PerHour   int
}

// RetryConfig configures upstream retries.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// LastFMConfig holds Last.fm API settings.
type LastFMConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// AuthConfig configures caller authentication.
type AuthConfig struct {
	// JWTSecret signs session tokens. Empty disables bearer tokens.
	JWTSecret string
	JWTIssuer string

	// APIKeys are parsed from entries of the form principal[@role,role]=key.
	// Only hashes are kept.
	APIKeys []*auth.APIKeyInfo

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.maintenance_interval", "1m")

	v.SetDefault("kv.dsn", "memory:")

	v.SetDefault("cache.version", "1.0.0")
	v.SetDefault("cache.pending_timeout", "5m")

	v.SetDefault("ratelimit.per_minute", 60)
	v.SetDefault("ratelimit.per_hour", 1000)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.max_delay", "10s")

	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.base_url", "https://ws.audioscrobbler.com/2.0/")
	v.SetDefault("lastfm.requests_per_second", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "musicops")
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.trust_proxy", false)

	v.SetDefault("observe.service_name", "musicops")
	v.SetDefault("observe.version", "dev")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.metrics.enabled", true)
	v.SetDefault("observe.metrics.exporter", "prometheus")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.release", "")
	v.SetDefault("sentry.sample_rate", 1.0)
}

// Load reads configuration from, in increasing precedence: defaults, the
// YAML file at path (or ./musicops.yaml when path is empty and the file
// exists), a .env file in the working directory, and MUSICOPS_ environment
// variables. Secret values are then resolved and the result validated.
func Load(ctx context.Context, path string) (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("musicops")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read musicops.yaml: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(ctx, v, NewSecretResolver())
}

func fromViper(ctx context.Context, v *viper.Viper, secrets *SecretResolver) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:                v.GetString("server.addr"),
			RequestTimeout:      v.GetDuration("server.request_timeout"),
			ShutdownTimeout:     v.GetDuration("server.shutdown_timeout"),
			MaintenanceInterval: v.GetDuration("server.maintenance_interval"),
		},
		KV: KVConfig{
			DSN: v.GetString("kv.dsn"),
		},
		Cache: CacheConfig{
			Version:        v.GetString("cache.version"),
			PendingTimeout: v.GetDuration("cache.pending_timeout"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: v.GetInt("ratelimit.per_minute"),
			PerHour:   v.GetInt("ratelimit.per_hour"),
		},
		Retry: RetryConfig{
			MaxRetries:   v.GetInt("retry.max_retries"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			MaxDelay:     v.GetDuration("retry.max_delay"),
		},
		LastFM: LastFMConfig{
			BaseURL:           v.GetString("lastfm.base_url"),
			RequestsPerSecond: v.GetFloat64("lastfm.requests_per_second"),
		},
		Auth: AuthConfig{
			JWTIssuer:  v.GetString("auth.jwt_issuer"),
			TrustProxy: v.GetBool("auth.trust_proxy"),
		},
		Observe: observe.Config{
			ServiceName: v.GetString("observe.service_name"),
			Version:     v.GetString("observe.version"),
			Tracing: observe.TracingConfig{
				Enabled:   v.GetBool("observe.tracing.enabled"),
				Exporter:  v.GetString("observe.tracing.exporter"),
				SamplePct: v.GetFloat64("observe.tracing.sample_pct"),
			},
			Metrics: observe.MetricsConfig{
				Enabled:  v.GetBool("observe.metrics.enabled"),
				Exporter: v.GetString("observe.metrics.exporter"),
			},
			Logging: observe.LoggingConfig{
				Enabled: v.GetBool("observe.logging.enabled"),
				Level:   v.GetString("observe.logging.level"),
			},
		},
		Sentry: observe.SentryConfig{
			Environment: v.GetString("sentry.environment"),
			Release:     v.GetString("sentry.release"),
			SampleRate:  v.GetFloat64("sentry.sample_rate"),
		},
	}

	var err error
	if cfg.LastFM.APIKey, err = secrets.Resolve(ctx, v.GetString("lastfm.api_key")); err != nil {
		return nil, fmt.Errorf("config: lastfm.api_key: %w", err)
	}
	if cfg.Auth.JWTSecret, err = secrets.Resolve(ctx, v.GetString("auth.jwt_secret")); err != nil {
		return nil, fmt.Errorf("config: auth.jwt_secret: %w", err)
	}
	if cfg.Sentry.DSN, err = secrets.Resolve(ctx, v.GetString("sentry.dsn")); err != nil {
		return nil, fmt.Errorf("config: sentry.dsn: %w", err)
	}
	if cfg.Auth.APIKeys, err = parseAPIKeys(ctx, v.GetStringSlice("auth.api_keys"), secrets); err != nil {
		return nil, err
	}
	if cfg.Sentry.Release == "" {
		cfg.Sentry.Release = cfg.Observe.ServiceName + "@" + cfg.Observe.Version
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseAPIKeys parses principal[@role,role]=key entries. The key part may be
// a secret reference.
func parseAPIKeys(ctx context.Context, entries []string, secrets *SecretResolver) ([]*auth.APIKeyInfo, error) {
	var out []*auth.APIKeyInfo
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		who, key, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: auth.api_keys[%d]: want principal[@roles]=key", ErrInvalid, i)
		}
		principal, roleList, _ := strings.Cut(who, "@")
		principal = strings.TrimSpace(principal)
		if principal == "" {
			return nil, fmt.Errorf("%w: auth.api_keys[%d]: empty principal", ErrInvalid, i)
		}

		resolved, err := secrets.Resolve(ctx, strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("config: auth.api_keys[%d]: %w", i, err)
		}

		var roles []string
		for _, r := range strings.Split(roleList, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
		out = append(out, &auth.APIKeyInfo{
			KeyHash:   auth.HashAPIKey(resolved),
			Principal: principal,
			Roles:     roles,
		})
	}
	return out, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		invalid("server.addr is empty")
	}
	if c.Server.RequestTimeout <= 0 {
		invalid("server.request_timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		invalid("server.shutdown_timeout must be positive")
	}
	if c.Server.MaintenanceInterval <= 0 {
		invalid("server.maintenance_interval must be positive")
	}
	if c.Cache.Version == "" {
		invalid("cache.version is empty")
	}
	if c.Cache.PendingTimeout <= 0 {
		invalid("cache.pending_timeout must be positive")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0 {
		invalid("ratelimit limits must be positive, got %d/min %d/hour", c.RateLimit.PerMinute, c.RateLimit.PerHour)
	}
	if c.Retry.MaxRetries < 0 {
		invalid("retry.max_retries must not be negative")
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		invalid("retry delays must satisfy 0 < initial_delay <= max_delay")
	}
	if c.LastFM.RequestsPerSecond <= 0 {
		invalid("lastfm.requests_per_second must be positive")
	}
	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		invalid("sentry.sample_rate must be within [0, 1]")
	}
	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: observe: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}
