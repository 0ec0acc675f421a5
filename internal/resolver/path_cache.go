// File: internal/resolver/path_cache.go
package resolver

import (
	"container/list"

	"github.com/glintsearch/glint/internal/types"
)

// pathCache is a bounded LRU of directory id -> resolved path. Eviction
// is harmless: the resolver re-walks the chain tables on a miss.
type pathCache struct {
	capacity int
	order    *list.List
	entries  map[types.FileID]*list.Element
}

type cacheEntry struct {
	id   types.FileID
	path string
}

func newPathCache(capacity int) *pathCache {
	if capacity < 1 {
		capacity = 1
	}
	return &pathCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[types.FileID]*list.Element),
	}
}

func (c *pathCache) get(id types.FileID) (string, bool) {
	el, ok := c.entries[id]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).path, true
}

func (c *pathCache) put(id types.FileID, path string) {
	if el, ok := c.entries[id]; ok {
		el.Value.(*cacheEntry).path = path
		c.order.MoveToFront(el)
		return
	}
	c.entries[id] = c.order.PushFront(&cacheEntry{id: id, path: path})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).id)
	}
}

func (c *pathCache) len() int { return c.order.Len() }

// invalidate removes one entry, for rename and move handling.
func (c *pathCache) invalidate(id types.FileID) {
	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
}
