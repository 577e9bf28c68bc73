// Package cache implements the repository object cache: a mapping
// from digest to the single live typed-object instance for that
// digest, with weak-interning semantics — the cache holds a
// non-owning reference, and an entry is evicted only once every
// external holder has released its handle.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

// Handle is a borrowed reference to a cached typed object. Callers
// must call Release when done; the cache evicts the entry once the
// last outstanding Handle for a digest has been released.
type Handle struct {
	c    *Cache
	id   oid.ID
	once sync.Once
}

// Object returns the typed object the handle refers to. It remains
// valid until Release.
func (h *Handle) Object() object.Interface {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	e, ok := h.c.entries[h.id]
	if !ok {
		return nil
	}
	return e.obj
}

// Release gives up this handle's claim on the cache entry. Calling it
// more than once is safe; only the first call has an effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.c.release(h.id)
	})
}

type entry struct {
	obj    object.Interface
	refs   int
	evict  bool // true if lru already dropped this key while refs > 0
}

// Cache is a per-repository digest-to-typed-object cache. The zero
// value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[oid.ID]*entry
	lru     *lru.Cache
}

// New returns a Cache whose underlying LRU holds at most maxEntries
// digests that currently have no external holders (refs == 0). A
// maxEntries of 0 disables that retention: an entry is dropped as soon
// as its last holder releases it.
func New(maxEntries int) *Cache {
	c := &Cache{entries: make(map[oid.ID]*entry)}
	c.lru = &lru.Cache{
		MaxEntries: maxEntries,
		OnEvicted: func(key lru.Key, _ interface{}) {
			c.onLRUEvicted(key.(oid.ID))
		},
	}
	return c
}

// onLRUEvicted runs with c.mu already released (groupcache/lru calls
// OnEvicted synchronously from within its own locked methods, but this
// Cache never calls into the lru.Cache while holding c.mu — see
// lookup/insert/release below), so it must take the lock itself.
func (c *Cache) onLRUEvicted(id oid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	if e.refs > 0 {
		// Still externally held: defer eviction until release puts it
		// back, rather than dropping a live handle's backing object.
		e.evict = true
		return
	}
	delete(c.entries, id)
}

// Lookup returns a Handle to the already-cached object for id, bumping
// its live count, or ok=false if id is not currently cached.
func (c *Cache) Lookup(id oid.ID) (h *Handle, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[id]
	if !found {
		return nil, false
	}
	e.refs++
	return &Handle{c: c, id: id}, true
}

// Insert interns obj under id and returns a Handle to it. If id is
// already cached, the existing instance is returned instead (cache
// identity: at most one live typed object per digest).
func (c *Cache) Insert(id oid.ID, obj object.Interface) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[id]
	if !found {
		e = &entry{obj: obj}
		c.entries[id] = e
	}
	e.refs++
	return &Handle{c: c, id: id}
}

func (c *Cache) release(id oid.ID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return
	}
	if e.evict || c.lru.MaxEntries == 0 {
		delete(c.entries, id)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// No external holders remain: make the entry eligible for the
	// LRU's normal size-based eviction. This call takes its own lock
	// internally and must happen outside c.mu to avoid a re-entrant
	// deadlock against onLRUEvicted.
	c.lru.Add(lru.Key(id), struct{}{})
}

// Len reports the number of digests currently tracked (held or
// LRU-resident).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
