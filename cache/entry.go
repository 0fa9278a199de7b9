package cache

import (
	"encoding/json"
	"time"
)

// DefaultVersion is the current entry format version. Entries written under
// any other version are treated as stale.
const DefaultVersion = "1.0.0"

// Entry is the persisted form of a cached value.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch ms
	ExpiresAt int64           `json:"expiresAt"` // epoch ms
	Version   string          `json:"version"`
}

// Valid reports whether the entry may be served at now under version.
func (e Entry) Valid(now time.Time, version string) bool {
	return now.UnixMilli() <= e.ExpiresAt && e.Version == version
}

type lookupState int

const (
	lookupMiss lookupState = iota
	lookupHit
	lookupStale
)

// lookup is the outcome of a KV read. Storage and decode failures are folded
// into lookupMiss; reads never return an error.
type lookup struct {
	entry Entry
	state lookupState
}
