package cache

import (
	"context"
	"strings"
)

// ToolExecutor runs one tool against the upstream API.
type ToolExecutor func(ctx context.Context, tool string, params map[string]string) (any, error)

// SkipRule reports whether a tool must bypass the cache.
type SkipRule func(tool string, tags []string) bool

// UnsafeTags mark tools with side effects. Their results are never cached.
var UnsafeTags = []string{"write", "mutation", "delete", "scrobble", "love"}

// DefaultSkipRule skips tools carrying any of UnsafeTags. Tag matching is
// case-insensitive.
func DefaultSkipRule(_ string, tags []string) bool {
	for _, tag := range tags {
		for _, unsafe := range UnsafeTags {
			if strings.EqualFold(tag, unsafe) {
				return true
			}
		}
	}
	return false
}

// ToolCache routes tool executions through a Cache. Each cacheable tool maps
// to an entry type; its parameters form the identifier.
type ToolCache struct {
	cache    Cache
	types    map[string]EntryType
	skipRule SkipRule
}

// NewToolCache creates a ToolCache. If skipRule is nil, DefaultSkipRule is
// used.
func NewToolCache(c Cache, types map[string]EntryType, skipRule SkipRule) *ToolCache {
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &ToolCache{
		cache:    c,
		types:    types,
		skipRule: skipRule,
	}
}

// EntryType returns the entry type a tool is cached under.
func (m *ToolCache) EntryType(tool string) (EntryType, bool) {
	t, ok := m.types[tool]
	return t, ok
}

// Execute serves the tool from the cache or runs exec. Tools without an
// entry type, and tools the skip rule rejects, always run exec directly.
func (m *ToolCache) Execute(
	ctx context.Context,
	tool string,
	params map[string]string,
	tags []string,
	exec ToolExecutor,
	opts ...FetchOption,
) (any, error) {
	t, ok := m.types[tool]
	if !ok || m.skipRule(tool, tags) {
		return exec(ctx, tool, params)
	}

	return m.cache.Fetch(ctx, t, IdentifierFromParams(params), func(ctx context.Context) (any, error) {
		return exec(ctx, tool, params)
	}, opts...)
}
