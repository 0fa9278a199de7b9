package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/cache"
	"github.com/jonwraymond/musicops/kv"
	"github.com/jonwraymond/musicops/resilience"
)

// runCLI executes the root command in an empty working directory backed by
// a sqlite store under dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(dir)
	t.Setenv("MUSICOPS_KV_DSN", "sqlite:"+filepath.Join(dir, "kv.db"))
	t.Setenv("MUSICOPS_OBSERVE_LOGGING_ENABLED", "false")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func openStore(t *testing.T, dir string) kv.Backend {
	t.Helper()
	store, err := kv.Open(context.Background(), "sqlite:"+filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestTokenIssue(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MUSICOPS_AUTH_JWT_SECRET", "cli-test-secret-0123456789")

	out, err := runCLI(t, dir, "token", "issue", "--subject", "ops", "--role", "admin", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token issue: %v (%s)", err, out)
	}

	jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
		Secret: []byte("cli-test-secret-0123456789"),
		Issuer: "musicops",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := jwtAuth.Authenticate(context.Background(), &auth.AuthRequest{
		Header: http.Header{"Authorization": {"Bearer " + strings.TrimSpace(out)}},
	})
	if err != nil || !res.Authenticated {
		t.Fatalf("issued token rejected: %v %+v", err, res)
	}
	if res.Identity.Principal != "ops" || !res.Identity.HasRole(auth.RoleAdmin) {
		t.Errorf("identity = %+v", res.Identity)
	}
}

func TestTokenIssue_RequiresSecret(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "token", "issue", "--subject", "ops"); err == nil {
		t.Error("token issue without a secret succeeded")
	}
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	c := cache.New(cache.Config{Store: store})
	ctx := context.Background()
	c.Set(ctx, cache.UserInfo, cache.IdentifierFromParams(map[string]string{"user": "rj"}), map[string]string{"name": "RJ"})
	c.Set(ctx, cache.UserInfo, cache.IdentifierFromParams(map[string]string{"user": "bob"}), map[string]string{"name": "Bob"})
	c.Set(ctx, cache.ArtistInfo, cache.IdentifierFromParams(map[string]string{"artist": "Cher"}), map[string]string{"name": "Cher"})
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, dir, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v (%s)", err, out)
	}
	var stats cache.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats %q: %v", out, err)
	}
	if stats.TotalEntries != 3 || stats.EntriesByType[cache.UserInfo] != 2 {
		t.Errorf("stats = %+v", stats)
	}

	out, err = runCLI(t, dir, "cache", "invalidate", "--type", "userInfo", "--prefix", "user=r")
	if err != nil {
		t.Fatalf("cache invalidate: %v (%s)", err, out)
	}
	if !strings.Contains(out, "invalidated 1 userInfo entries") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCLI(t, dir, "cache", "invalidate", "--type", "bogus"); err == nil {
		t.Error("invalidate with unknown type succeeded")
	}
}

func TestRateLimitCommands(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	limiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{Store: store})
	for i := 0; i < 2; i++ {
		if d := limiter.CheckLimit(context.Background(), "user:rj"); !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, dir, "ratelimit", "status", "user:rj")
	if err != nil {
		t.Fatalf("ratelimit status: %v (%s)", err, out)
	}
	var usage resilience.Usage
	if err := json.Unmarshal([]byte(out), &usage); err != nil {
		t.Fatalf("decode usage %q: %v", out, err)
	}
	// The two requests may straddle an hour boundary.
	if usage.Hour.Remaining > 999 || usage.Hour.Remaining < 998 {
		t.Errorf("hour remaining = %d", usage.Hour.Remaining)
	}

	if out, err := runCLI(t, dir, "ratelimit", "reset", "user:rj"); err != nil {
		t.Fatalf("ratelimit reset: %v (%s)", err, out)
	}

	store = openStore(t, dir)
	defer store.Close()
	res, err := store.List(context.Background(), kv.ListOptions{Prefix: "rl:user:rj:"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Keys) != 0 {
		t.Errorf("counters left after reset: %v", res.Names())
	}
}

func TestKVScheme(t *testing.T) {
	tests := []struct{ dsn, want string }{
		{"", "memory"},
		{"memory:", "memory"},
		{"sqlite:/tmp/kv.db", "sqlite"},
		{"postgres://u:p@db/musicops", "postgres"},
	}
	for _, tt := range tests {
		if got := kvScheme(tt.dsn); got != tt.want {
			t.Errorf("kvScheme(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
