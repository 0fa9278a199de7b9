package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetOrFetch is the typed form of Cache.Fetch. Cached payloads are decoded
// into T; a fresh value of type T is returned as is.
func GetOrFetch[T any](ctx context.Context, c Cache, t EntryType, identifier string, fetch func(context.Context) (T, error), opts ...FetchOption) (T, error) {
	var zero T
	if fetch == nil {
		return zero, ErrNilFetcher
	}

	v, err := c.Fetch(ctx, t, identifier, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	return decode[T](v)
}

// Lookup is the typed form of Cache.Get. A payload that does not decode into
// T is reported as a miss.
func Lookup[T any](ctx context.Context, c Cache, t EntryType, identifier string) (T, bool) {
	raw, ok := c.Get(ctx, t, identifier)
	if !ok {
		var zero T
		return zero, false
	}
	v, err := decode[T](raw)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func decode[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	var out T
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
