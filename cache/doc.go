// Package cache provides a versioned response cache over a kv.Store.
//
// Entries are stored under cache:<entryType>:<identifier> as JSON envelopes
// ({data, timestamp, expiresAt, version}) with a TTL per entry type. Reads
// delete expired or foreign-version entries and never fail: storage faults
// degrade to a miss.
//
// SmartCache.Fetch coalesces concurrent misses so at most one fetcher runs
// per key in a process. CleanupPending releases fetches that never settle and
// is meant to be driven by a maintenance loop. NullCache is a drop-in for
// deployments without a store.
package cache
