// Package relcache provides the process-wide relevance cache shared by the
// fast-track and ranking controllers. Two namespaces use it: retrieval
// results keyed by (query, site), and scoring judgments keyed by
// (rendered prompt, item description).
//
// Entries expire after a fixed TTL and are never returned once stale.
// The cache is unbounded — callers must not assume size-based eviction.
package relcache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTL is how long an entry stays valid. Shared by both cache namespaces.
const TTL = 300 * time.Second

// Cache is a keyed, time-expiring store safe for concurrent callers.
// Expiry is checked lazily on lookup; no background sweep runs.
type Cache struct {
	// backing is the TTL store. Constructed with no janitor goroutine;
	// stale entries are deleted on lookup rather than being swept.
	backing *gocache.Cache
}

// New returns an empty Cache with the package TTL.
func New() *Cache {
	return NewWithTTL(TTL)
}

// NewWithTTL returns an empty Cache with an explicit TTL. Used by tests to
// exercise expiry without waiting five minutes.
func NewWithTTL(ttl time.Duration) *Cache {
	// Cleanup interval 0 disables the janitor; expired entries are never
	// returned and the first lookup after expiry deletes them.
	return &Cache{backing: gocache.New(ttl, 0)}
}

// Key derives a deterministic cache key from the namespace inputs.
// The digest keeps keys bounded even when prompts run to kilobytes.
func Key(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// Get returns the value stored under key, or ok=false when the key is
// absent or its entry has outlived the TTL. A stale entry is removed as a
// side effect of the lookup; with no janitor running, the lookup is the
// only place expired values get released.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.backing.Get(key)
	if !ok {
		// Miss covers both absent and expired; Delete on an absent key is
		// a no-op.
		c.backing.Delete(key)
	}
	return v, ok
}

// Len reports the number of stored entries, counting expired entries that
// no lookup has released yet.
func (c *Cache) Len() int {
	return c.backing.ItemCount()
}

// Put stores value under key with the cache's TTL, replacing any previous
// entry.
func (c *Cache) Put(key string, value any) {
	c.backing.Set(key, value, gocache.DefaultExpiration)
}
