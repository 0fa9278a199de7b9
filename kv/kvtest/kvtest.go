// Package kvtest provides an in-memory kv.Store with fault injection for
// tests.
package kvtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/musicops/kv"
)

// ErrInjected is returned by a Store whose operation was set to fail.
var ErrInjected = errors.New("kvtest: injected failure")

// Op names a store operation.
type Op string

const (
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

type item struct {
	value     string
	expiresAt time.Time
}

// Store is a map-backed kv.Store. TTLs are recorded and honored against Now.
type Store struct {
	mu    sync.Mutex
	items map[string]item
	ttls  map[string]time.Duration
	fail  map[Op]error
	calls map[Op]int

	// Now is the clock used for expiry. Default: time.Now.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		items: make(map[string]item),
		ttls:  make(map[string]time.Duration),
		fail:  make(map[Op]error),
		calls: make(map[Op]int),
		Now:   time.Now,
	}
}

// Fail makes every call to op return err. A nil err clears the fault.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// FailAll makes every operation return ErrInjected.
func (s *Store) FailAll() {
	for _, op := range []Op{OpGet, OpPut, OpDelete, OpList} {
		s.Fail(op, ErrInjected)
	}
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TTL returns the TTL passed on the last Put of key.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Raw returns the stored value of key, ignoring expiry.
func (s *Store) Raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	return it.value, ok
}

// Keys returns all stored keys, ignoring expiry, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) begin(op Op) error {
	s.calls[op]++
	return s.fail[op]
}

func (s *Store) live(it item) bool {
	return it.expiresAt.IsZero() || s.Now().Before(it.expiresAt)
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGet); err != nil {
		return "", false, err
	}
	it, ok := s.items[key]
	if !ok || !s.live(it) {
		return "", false, nil
	}
	return it.value, true, nil
}

func (s *Store) Put(_ context.Context, key, value string, opts kv.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpPut); err != nil {
		return err
	}
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	it := item{value: value}
	if opts.TTL > 0 {
		it.expiresAt = s.Now().Add(opts.TTL)
	}
	s.items[key] = it
	s.ttls[key] = opts.TTL
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpDelete); err != nil {
		return err
	}
	delete(s.items, key)
	delete(s.ttls, key)
	return nil
}

func (s *Store) List(_ context.Context, opts kv.ListOptions) (kv.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpList); err != nil {
		return kv.ListResult{}, err
	}

	var names []string
	for k, it := range s.items {
		if strings.HasPrefix(k, opts.Prefix) && s.live(it) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	limit := opts.Limit
	if limit <= 0 {
		limit = kv.DefaultListLimit
	}
	if len(names) > limit {
		names = names[:limit]
	}

	res := kv.ListResult{Keys: make([]kv.KeyInfo, len(names))}
	for i, n := range names {
		res.Keys[i] = kv.KeyInfo{Name: n}
	}
	return res, nil
}

var _ kv.Store = (*Store)(nil)
