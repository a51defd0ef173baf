package assets

import "sync"

/*
Cache is the shared asset de-duplication state:

  - asset_map (positive cache): url -> relative local path
  - failed_assets (negative cache): set of permanently-failed urls
  - reservations: at-most-one-fetch-in-flight discipline

Critical sections are short: a map lookup or insert. The HTTP fetch itself
always happens outside the mutex; a reservation placeholder lets concurrent
callers for the same URL await the first caller's result instead of issuing
duplicate requests.
*/
type Cache struct {
	mu           sync.Mutex
	positive     map[string]string
	negative     map[string]struct{}
	reservations map[string]*reservation
	disk         *DiskDedupStore
}

type reservation struct {
	done   chan struct{}
	result string
	ok     bool
}

// NewCache builds an empty in-memory cache, optionally backed by disk for
// cross-run dedup durability.
func NewCache(disk *DiskDedupStore) *Cache {
	c := &Cache{
		positive:     make(map[string]string),
		negative:     make(map[string]struct{}),
		reservations: make(map[string]*reservation),
		disk:         disk,
	}
	if disk != nil {
		disk.LoadInto(c.positive, c.negative)
	}
	return c
}

// Lookup reports a cached result for key without taking a reservation: found
// indicates a positive hit (path is valid) or negative hit (failed is true).
// Exported for observability/testing; Fetch is the normal call path.
func (c *Cache) Lookup(key string) (path string, found bool, failed bool) {
	return c.lookup(key)
}

func (c *Cache) lookup(key string) (path string, found bool, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.positive[key]; ok {
		return p, true, false
	}
	if _, ok := c.negative[key]; ok {
		return "", true, true
	}
	return "", false, false
}

// acquire either returns an existing in-flight reservation for key (owned=
// false; the caller must wait on it) or creates and owns a new one (owned=
// true; the caller must call publish or fail exactly once).
func (c *Cache) acquire(key string) (r *reservation, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.reservations[key]; ok {
		return r, false
	}
	r = &reservation{done: make(chan struct{})}
	c.reservations[key] = r
	return r, true
}

// publish records a successful fetch, releases the reservation, and wakes
// any waiters.
func (c *Cache) publish(key, path string) {
	c.mu.Lock()
	c.positive[key] = path
	r := c.reservations[key]
	delete(c.reservations, key)
	c.mu.Unlock()

	if c.disk != nil {
		c.disk.PutPositive(key, path)
	}
	if r != nil {
		r.result, r.ok = path, true
		close(r.done)
	}
}

// fail records a permanent failure, releases the reservation, and wakes any
// waiters.
func (c *Cache) fail(key string) {
	c.mu.Lock()
	c.negative[key] = struct{}{}
	r := c.reservations[key]
	delete(c.reservations, key)
	c.mu.Unlock()

	if c.disk != nil {
		c.disk.PutNegative(key)
	}
	if r != nil {
		close(r.done)
	}
}

// Size returns the number of successfully cached assets, for progress
// logging.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.positive)
}

// Close flushes and closes the disk-backed dedup store, if any. The
// in-memory maps stay readable; only durability stops.
func (c *Cache) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}

// Snapshot returns copies of the positive (url -> local path) and negative
// (permanently-failed url) cache contents, for assembling the run manifest's
// asset_map/failed_assets fields once a crawl has finished.
func (c *Cache) Snapshot() (positive map[string]string, failed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positive = make(map[string]string, len(c.positive))
	for k, v := range c.positive {
		positive[k] = v
	}
	failed = make([]string, 0, len(c.negative))
	for k := range c.negative {
		failed = append(failed, k)
	}
	return positive, failed
}
