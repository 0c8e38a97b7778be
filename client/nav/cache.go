package nav

import (
	"container/list"
	"time"
)

// pageCache is a size-bounded cache of fetched pages with TTL eviction on
// read. Keys are normalized URLs (fragment stripped).
type pageCache struct {
	max     int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
}

type cacheEntry struct {
	key   string
	page  *Page
	added time.Time
}

func newPageCache(max int, ttl time.Duration) *pageCache {
	return &pageCache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// get returns the cached page, evicting it first if its TTL has lapsed.
func (c *pageCache) get(key string) (*Page, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.added) > c.ttl {
		c.remove(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.page, true
}

// put stores a page, evicting the least recently used entry past capacity.
func (c *pageCache) put(key string, page *Page) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).page = page
		el.Value.(*cacheEntry).added = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, page: page, added: c.now()})
	c.entries[key] = el
	for c.order.Len() > c.max {
		c.remove(c.order.Back())
	}
}

func (c *pageCache) has(key string) bool {
	_, ok := c.get(key)
	return ok
}

func (c *pageCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(c.entries, el.Value.(*cacheEntry).key)
	c.order.Remove(el)
}

func (c *pageCache) len() int {
	return c.order.Len()
}
