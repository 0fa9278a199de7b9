package kv

import (
	"context"
	"errors"
	"testing"
)

func newTestMemoryStore(t *testing.T) Store {
	t.Helper()
	s, err := NewMemoryStore(MemoryConfig{MaxSizeMB: 1, MaxEntries: 100})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, newTestMemoryStore)
}

func TestMemoryStore_Closed(t *testing.T) {
	s, err := NewMemoryStore(MemoryConfig{})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
	if _, err := s.List(ctx, ListOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("List() error = %v, want ErrClosed", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, "k", "v", PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
}
