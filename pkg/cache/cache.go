// Package cache memoizes resolved values per absolute address.
package cache

import (
	"github.com/wcstack/statecore/pkg/address"
)

// Entry is a cached value. Dirty means the value is stale and must be
// recomputed before it is trusted, but it is still available.
type Entry struct {
	Value any
	Dirty bool
}

type Cache struct {
	entries map[*address.AbsoluteStateAddress]*Entry
}

func New() *Cache {
	return &Cache{entries: map[*address.AbsoluteStateAddress]*Entry{}}
}

// Get returns the entry for addr and whether one exists.
func (c *Cache) Get(addr *address.AbsoluteStateAddress) (Entry, bool) {
	entry, ok := c.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (c *Cache) Set(addr *address.AbsoluteStateAddress, entry Entry) {
	if existing, ok := c.entries[addr]; ok {
		*existing = entry
		return
	}
	c.entries[addr] = &entry
}

// Invalidate marks an existing entry dirty, keeping its value. It reports
// whether there was an entry to invalidate.
func (c *Cache) Invalidate(addr *address.AbsoluteStateAddress) bool {
	entry, ok := c.entries[addr]
	if !ok {
		return false
	}
	entry.Dirty = true
	return true
}

func (c *Cache) Delete(addr *address.AbsoluteStateAddress) {
	delete(c.entries, addr)
}

// DeleteState drops every entry owned by stateName.
func (c *Cache) DeleteState(stateName string) int {
	n := 0
	for addr := range c.entries {
		if addr.StateName() == stateName {
			delete(c.entries, addr)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	return len(c.entries)
}
