package reconcile

import (
	"sync"
)

// Record is any entity snapshot carrying a monotonic version.
type Record interface {
	Key() string
	RecordVersion() int64
}

// Cache merges records from independent sources (initial fetch, poll,
// push) by version: a record is applied only if strictly newer than the
// cached one. The merge is idempotent and order-tolerant, so poll and
// push may race freely.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Record)}
}

// Apply stores the record if its version is strictly newer than the
// cached one. Returns true when the record was applied.
func (c *Cache) Apply(rec Record) bool {
	if rec == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[rec.Key()]; ok && rec.RecordVersion() <= cur.RecordVersion() {
		return false
	}
	c.entries[rec.Key()] = rec
	return true
}

// Get returns the cached record for a key.
func (c *Cache) Get(key string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[key]
	return rec, ok
}

// Drop removes the record for a key. Idempotent.
func (c *Cache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// OptimisticBool is the state wrapper for user-initiated toggles:
// render the optimistic value while a server call is in flight, fall
// back to the confirmed value once the call settles.
type OptimisticBool struct {
	mu         sync.Mutex
	confirmed  bool
	optimistic *bool
}

func NewOptimisticBool(confirmed bool) *OptimisticBool {
	return &OptimisticBool{confirmed: confirmed}
}

// Value returns the optimistic value if set, else the confirmed one.
func (o *OptimisticBool) Value() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.optimistic != nil {
		return *o.optimistic
	}
	return o.confirmed
}

// SetOptimistic applies a local change before server confirmation.
func (o *OptimisticBool) SetOptimistic(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimistic = &v
}

// Resolve records the authoritative value and clears the optimistic one.
func (o *OptimisticBool) Resolve(confirmed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confirmed = confirmed
	o.optimistic = nil
}

// Rollback clears the optimistic value, reverting to last confirmed.
func (o *OptimisticBool) Rollback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimistic = nil
}

// Pending reports whether a confirmation is still outstanding.
func (o *OptimisticBool) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.optimistic != nil
}
