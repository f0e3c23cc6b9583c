package dynamic

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// key identifies one per-tenant partition of an entity.
type key struct {
	entity string
	tenant string
}

// String joins the parts with NUL, which cannot occur in entity names or
// routing ids.
func (k key) String() string { return k.entity + "\x00" + k.tenant }

// flightKey names one provisioning generation of k.
func flightKey(k key, gen uint64) string {
	return k.String() + "\x00" + strconv.FormatUint(gen, 10)
}

// Cache holds readiness state and bound repositories per (entity, tenant).
// Routers sharing a Cache share readiness. The zero value is not usable;
// call NewCache.
//
// Each key carries a generation that evict advances. A provisioning pass
// started under an older generation cannot mark the key ready.
type Cache struct {
	mu    sync.RWMutex
	ready map[key]struct{}
	repos map[key]any
	gens  map[key]uint64

	group singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		ready: make(map[key]struct{}),
		repos: make(map[key]any),
		gens:  make(map[key]uint64),
	}
}

func (c *Cache) isReady(k key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ready[k]
	return ok
}

// flight returns the singleflight key and generation of k's next pass.
func (c *Cache) flight(k key) (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gen := c.gens[k]
	return flightKey(k, gen), gen
}

// markReady records k as ready unless k was evicted after gen started.
func (c *Cache) markReady(k key, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[k] != gen {
		return false
	}
	c.ready[k] = struct{}{}
	return true
}

func (c *Cache) repo(k key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.repos[k]
	return r, ok
}

// storeRepo caches r unless another caller won the race, and returns the
// cached value.
func (c *Cache) storeRepo(k key, r any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.repos[k]; ok {
		return existing
	}
	c.repos[k] = r
	return r
}

// evict clears k and advances its generation. It returns the flight key of
// the evicted generation so callers can wait for a pass still running.
func (c *Cache) evict(k key) string {
	c.mu.Lock()
	stale := flightKey(k, c.gens[k])
	c.gens[k]++
	delete(c.ready, k)
	delete(c.repos, k)
	c.mu.Unlock()
	return stale
}

// Len returns the number of ready partitions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ready)
}
