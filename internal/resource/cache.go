package resource

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"shaderdebug/internal/ir"
)

// DefaultCacheSize bounds the number of read-only views kept per session.
const DefaultCacheSize = 64

type cacheKey struct {
	class ir.ResourceClass
	slot  BindingSlot
}

// Cache holds the resource contents a session has touched. Read-only views
// are fetched on demand and kept in an LRU; read-write views are fetched
// once and then owned by the session, so writes stay visible to every lane.
type Cache struct {
	ro *simplelru.LRU[cacheKey, *Data]
	rw map[BindingSlot]*Data
}

// NewCache creates a cache holding at most size read-only views.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	ro, err := simplelru.NewLRU[cacheKey, *Data](size, nil)
	if err != nil {
		return nil, fmt.Errorf("resource cache: %w", err)
	}
	return &Cache{ro: ro, rw: make(map[BindingSlot]*Data)}, nil
}

// ReadOnly returns the contents of an SRV or constant buffer.
func (c *Cache) ReadOnly(acc Accessor, class ir.ResourceClass, slot BindingSlot) (*Data, error) {
	key := cacheKey{class: class, slot: slot}
	if d, ok := c.ro.Get(key); ok {
		return d, nil
	}
	d, err := acc.FetchReadOnly(class, slot)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", class, slot, err)
	}
	c.ro.Add(key, d)
	return d, nil
}

// ReadWrite returns the session's copy of a UAV.
func (c *Cache) ReadWrite(acc Accessor, slot BindingSlot) (*Data, error) {
	if d, ok := c.rw[slot]; ok {
		return d, nil
	}
	d, err := acc.FetchReadWrite(slot)
	if err != nil {
		return nil, fmt.Errorf("fetch UAV %s: %w", slot, err)
	}
	c.rw[slot] = d
	return d, nil
}

// Len returns the number of cached read-only and read-write views.
func (c *Cache) Len() (readOnly, readWrite int) {
	return c.ro.Len(), len(c.rw)
}
