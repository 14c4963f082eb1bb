package router

import (
	"container/list"

	"github.com/cespare/xxhash/v2"
)

// matchCache is a small bounded LRU of positive matches keyed by exact path
// string (spec §4.2: "Cache positive matches by exact path for a small
// bounded LRU (default 1024 entries) to avoid re-scanning"). Keys are
// hashed with xxhash to keep the map comparison cheap; the list element
// still carries the raw path so a hash collision never returns a wrong hit.
type matchCache struct {
	capacity int
	ll       *list.List
	index    map[uint64]*list.Element
}

type cacheEntry struct {
	hash   uint64
	path   string
	route  *Route
	params map[string]string
}

func newMatchCache(capacity int) *matchCache {
	return &matchCache{capacity: capacity, ll: list.New(), index: make(map[uint64]*list.Element)}
}

func (c *matchCache) get(rawPath string) (*Route, map[string]string, bool) {
	if c.capacity <= 0 {
		return nil, nil, false
	}
	h := xxhash.Sum64String(rawPath)
	el, ok := c.index[h]
	if !ok {
		return nil, nil, false
	}
	ent := el.Value.(*cacheEntry)
	if ent.path != rawPath {
		return nil, nil, false
	}
	c.ll.MoveToFront(el)
	return ent.route, ent.params, true
}

func (c *matchCache) put(rawPath string, route *Route, params map[string]string) {
	if c.capacity <= 0 {
		return
	}
	h := xxhash.Sum64String(rawPath)
	if el, ok := c.index[h]; ok {
		el.Value.(*cacheEntry).path = rawPath
		el.Value.(*cacheEntry).route = route
		el.Value.(*cacheEntry).params = params
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{hash: h, path: rawPath, route: route, params: params})
	c.index[h] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).hash)
		}
	}
}

// invalidate drops every cached entry; called whenever Register or
// Overwrite changes the route tables so a cached match never refers to a
// route that has since been replaced.
func (c *matchCache) invalidate() {
	c.ll = list.New()
	c.index = make(map[uint64]*list.Element)
}
