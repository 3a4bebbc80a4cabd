package catalog

import (
	"errors"
	"sync"

	"tgstream/models"
)

var ErrNotFound = errors.New("catalog entry not found")

// Catalog is the in-memory index of streamable items. It is a cache of the backend's
// ground truth, not the system of record, and is rebuilt on every boot.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]models.CatalogEntry
	order   []string
}

func New() *Catalog {
	return &Catalog{entries: make(map[string]models.CatalogEntry)}
}

// Put inserts or replaces the entry stored under entry.Handle. A replaced entry keeps
// its original listing position.
func (c *Catalog) Put(entry models.CatalogEntry) {
	stored := entry.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[stored.Handle]; !exists {
		c.order = append(c.order, stored.Handle)
	}
	c.entries[stored.Handle] = stored
}

// Get returns a copy of the entry for handle.
func (c *Catalog) Get(handle string) (models.CatalogEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[handle]
	c.mu.RUnlock()

	if !ok {
		return models.CatalogEntry{}, ErrNotFound
	}
	return entry.Clone(), nil
}

// List returns all entries in insertion order.
func (c *Catalog) List() []models.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CatalogEntry, 0, len(c.order))
	for _, handle := range c.order {
		out = append(out, c.entries[handle].Clone())
	}
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
