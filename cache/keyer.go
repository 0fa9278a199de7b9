package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/jonwraymond/musicops/kv"
)

// Key namespaces.
const (
	keyPrefix     = "cache:"
	pendingPrefix = "pending:"
)

// hashedPrefix marks identifiers that were replaced by their digest.
const hashedPrefix = "sha256-"

// Identifier joins caller parameters into a deterministic identifier. Each
// part is URL-escaped so distinct parameter lists never collide.
func Identifier(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.QueryEscape(p)
	}
	return strings.Join(escaped, ":")
}

// IdentifierFromParams builds an identifier from named parameters. Keys are
// sorted, so map iteration order never changes the result. Empty values are
// kept: "limit=" and a missing limit are different requests.
func IdentifierFromParams(params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(params[k])
	}
	return strings.Join(parts, ":")
}

// Key returns the KV key for an entry.
// Format: cache:<entryType>:<identifier>
//
// Identifiers that would push the key past kv.MaxKeyLength are replaced by a
// SHA-256 digest.
func Key(t EntryType, identifier string) string {
	key := keyPrefix + string(t) + ":" + identifier
	if len(key) <= kv.MaxKeyLength {
		return key
	}
	return keyPrefix + string(t) + ":" + hashIdentifier(identifier)
}

func pendingKey(t EntryType, identifier string) string {
	return pendingPrefix + strings.TrimPrefix(Key(t, identifier), keyPrefix)
}

func typePrefix(t EntryType) string {
	return keyPrefix + string(t) + ":"
}

func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hashedPrefix + hex.EncodeToString(sum[:])
}

// entryTypeOf extracts the entry type from a cache key.
func entryTypeOf(key string) (EntryType, bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", false
	}
	t, _, ok := strings.Cut(rest, ":")
	if !ok || t == "" {
		return "", false
	}
	return EntryType(t), true
}
