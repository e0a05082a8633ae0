package grantor

import (
	"sync"
	"time"
)

// cacheKey uniquely identifies one resolved permission set: a principal and
// a scope ("global:<orgUUID>" or "project:<projectUUID>"). Exact-match only.
type cacheKey struct {
	principal string
	scope     string
}

// cacheEntry stores a resolved permission set. Errors are not cached; a
// failed resolution is re-attempted on the next call.
type cacheEntry struct {
	permissions []Permission
	expiresAt   time.Time // zero means no expiry
}

// Cache stores resolved permission sets. It is safe for concurrent use from
// multiple goroutines, but resolution results go stale as grants change, so
// scope a Cache to a single request (or transaction) rather than sharing one
// across the process. The Resolver never creates a cache on its own: callers
// opt in with WithCache, keeping memoization out of ambient state.
type Cache interface {
	// Get retrieves a cached permission set.
	// Returns (permissions, found). A found nil slice is a valid empty set.
	Get(principal Principal, scope string) ([]Permission, bool)

	// Set stores a resolved permission set.
	Set(principal Principal, scope string, permissions []Permission)
}

// CacheImpl is the default in-memory cache with optional TTL.
type CacheImpl struct {
	mu    sync.RWMutex
	items map[cacheKey]cacheEntry
	ttl   time.Duration // 0 means no expiry
}

// CacheOption configures a Cache.
type CacheOption func(*CacheImpl)

// WithTTL sets the time-to-live for cache entries. A TTL of 0 (default)
// means entries never expire within the cache's lifetime, which is only
// safe for request-scoped caches.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CacheImpl) {
		c.ttl = ttl
	}
}

// NewCache creates a new permission-set cache.
func NewCache(opts ...CacheOption) *CacheImpl {
	c := &CacheImpl{
		items: make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a cached permission set.
func (c *CacheImpl) Get(principal Principal, scope string) ([]Permission, bool) {
	key := cacheKey{principal: principal.String(), scope: scope}

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}

	return copyPermissions(entry.permissions), true
}

// Set stores a resolved permission set. The set is copied on the way in and
// on the way out, so callers may mutate what they passed or received without
// corrupting later hits.
func (c *CacheImpl) Set(principal Principal, scope string, permissions []Permission) {
	key := cacheKey{principal: principal.String(), scope: scope}

	entry := cacheEntry{permissions: copyPermissions(permissions)}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
}

// Size returns the number of entries in the cache.
func (c *CacheImpl) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries from the cache. Call after any grant mutation
// if the cache outlives the request that mutated.
func (c *CacheImpl) Clear() {
	c.mu.Lock()
	c.items = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
}

// copyPermissions clones a permission set, preserving nil as the empty set.
func copyPermissions(permissions []Permission) []Permission {
	if permissions == nil {
		return nil
	}
	return append([]Permission(nil), permissions...)
}

// Ensure CacheImpl implements Cache.
var _ Cache = (*CacheImpl)(nil)
