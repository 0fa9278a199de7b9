package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a key in bytes.
const MaxKeyLength = 512

// MinTTL is the shortest expiration a store accepts. Shorter TTLs are raised
// to it.
const MinTTL = 60 * time.Second

// DefaultListLimit is used when ListOptions.Limit is zero.
const DefaultListLimit = 1000

// Sentinel errors for store operations.
var (
	ErrInvalidKey = errors.New("kv: key is invalid")
	ErrKeyTooLong = errors.New("kv: key exceeds max length")
	ErrClosed     = errors.New("kv: store is closed")
	ErrUnknownDSN = errors.New("kv: unsupported dsn")
)

// PutOptions configures a single write.
type PutOptions struct {
	// TTL is the provider-level expiration. Zero means the key never expires.
	TTL time.Duration
}

// ListOptions narrows a List call.
type ListOptions struct {
	Prefix string
	// Limit caps the number of keys returned. Zero means DefaultListLimit.
	Limit int
}

// KeyInfo describes a listed key.
type KeyInfo struct {
	Name string
}

// ListResult is the outcome of a List call. Keys are in lexical order.
type ListResult struct {
	Keys []KeyInfo
}

// Names returns the listed key names.
func (r ListResult) Names() []string {
	names := make([]string, len(r.Keys))
	for i, k := range r.Keys {
		names[i] = k.Name
	}
	return names
}

// Store is the key-value contract.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods should honor cancellation/deadlines.
//   - Errors: Get returns ("", false, nil) on a miss; err is reserved for
//     transport or storage failures. Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, opts PutOptions) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// Backend is a Store that owns resources.
type Backend interface {
	Store
	Close() error
}

// ValidateKey checks if a key is acceptable to every adapter.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// normalizeTTL applies MinTTL and rounds up to whole seconds.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl < MinTTL {
		return MinTTL
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	return ttl
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
