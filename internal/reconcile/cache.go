package reconcile

import (
	"sort"
	"sync"

	"github.com/jerrsapps1/opssync/internal/model"
)

// Key addresses a cached entity. All cache access is keyed by the full
// (kind, id) pair; there are no per-view string keys to keep in sync.
type Key struct {
	Kind model.EntityKind
	ID   string
}

// Cache is the client's typed view of the entity roster.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*model.Entity
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*model.Entity)}
}

// Get returns a copy of the cached entity.
func (c *Cache) Get(kind model.EntityKind, id string) (*model.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key{Kind: kind, ID: id}]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// List returns all cached entities ordered by kind then id.
func (c *Cache) List() []*model.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Entity, 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Replace swaps the whole cache for a fresh roster snapshot (full resync).
func (c *Cache) Replace(entities []*model.Entity) {
	fresh := make(map[Key]*model.Entity, len(entities))
	for _, e := range entities {
		cp := *e
		fresh[Key{Kind: e.Kind, ID: e.ID}] = &cp
	}
	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// upsert stores a copy of e.
func (c *Cache) upsert(e *model.Entity) {
	cp := *e
	c.mu.Lock()
	c.entries[Key{Kind: e.Kind, ID: e.ID}] = &cp
	c.mu.Unlock()
}

// setAssignment renders the entity under a new owner. Setting the same value
// twice is a no-op, which makes authoritative-event application idempotent.
func (c *Cache) setAssignment(k Key, value model.Assignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		e.Assignment = value
	}
}

// setStatus updates lifecycle state; archiving clears the assignment the
// same way the server does.
func (c *Cache) setStatus(k Key, status model.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		e.Status = status
		if status == model.StatusArchived {
			e.Assignment = ""
		}
	}
}

// remove drops the entity.
func (c *Cache) remove(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}
