package kv

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSQLiteStore(t *testing.T, opts ...SQLiteOption) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}

func TestSQLiteStore_Expiry(t *testing.T) {
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	s := newTestSQLiteStore(t, WithSQLiteClock(clock.Now))
	ctx := context.Background()

	if err := s.Put(ctx, "rl:bob:minute:1", "3", PutOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "forever", "x", PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "rl:bob:minute:1"); !ok {
		t.Fatal("entry should be live before its TTL")
	}

	clock.Advance(2 * time.Second)
	if _, ok, _ := s.Get(ctx, "rl:bob:minute:1"); ok {
		t.Error("entry should be invisible after its TTL")
	}

	res, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Keys) != 1 || res.Keys[0].Name != "forever" {
		t.Errorf("List() = %v, want only the unbounded key", res.Names())
	}

	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() removed %d rows, want 1", n)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Put(ctx, "cache:trackInfo:x", "payload", PutOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_ = s.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "cache:trackInfo:x")
	if err != nil || !ok || v != "payload" {
		t.Errorf("Get() after reopen = (%q, %v, %v), want payload", v, ok, err)
	}
}
