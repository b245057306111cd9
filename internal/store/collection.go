// Package store holds the persisted dataset: a generic keyed collection for
// in-memory records and a JSON file store that round-trips the whole dataset.
package store

import (
	"sort"
	"sync"
)

// Collection is a thread-safe, in-memory keyed collection of records of type
// T with deterministic iteration order (insertion order, sorted after a
// snapshot load).
type Collection[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewCollection creates an empty collection.
func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{
		items: make(map[string]T),
		order: make([]string, 0),
	}
}

// Set stores a record under id. An existing record is overwritten in place,
// keeping its position in the iteration order.
func (c *Collection[T]) Set(id string, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = item
}

// Get retrieves a record by id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Delete removes a record by id. Returns true if the record existed.
func (c *Collection[T]) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; !exists {
		return false
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all records in iteration order.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]T, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, c.items[id])
	}
	return result
}

// Filter returns the records matching the predicate, in iteration order.
func (c *Collection[T]) Filter(predicate func(id string, item T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []T
	for _, id := range c.order {
		if predicate(id, c.items[id]) {
			result = append(result, c.items[id])
		}
	}
	return result
}

// Count returns the number of records.
func (c *Collection[T]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of the collection as a plain map.
func (c *Collection[T]) Snapshot() map[string]T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]T, len(c.items))
	for k, v := range c.items {
		snapshot[k] = v
	}
	return snapshot
}

// LoadSnapshot replaces the collection's contents from a plain map. IDs are
// sorted so the iteration order is deterministic across loads.
func (c *Collection[T]) LoadSnapshot(snapshot map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]T, len(snapshot))
	c.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		c.items[k] = v
		c.order = append(c.order, k)
	}
	sort.Strings(c.order)
}
