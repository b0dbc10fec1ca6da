package service

import (
	"slices"
	"sync"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

// Cache is the local notification store. It holds at most one entry per id
// and keeps the unread counter in step with the entries it holds.
type Cache struct {
	mu     sync.RWMutex
	items  map[model.ID]*model.Notification
	order  []model.ID // insertion order, used to break CreatedAt ties
	unread int
}

func NewCache() *Cache {
	return &Cache{items: make(map[model.ID]*model.Notification)}
}

// Insert adds n unless its id is already known. It reports whether n was added.
func (c *Cache) Insert(n *model.Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(n)
}

// Merge inserts every unknown item of a history page and returns how many were
// added. A known unread entry that the page reports as read is marked read;
// read state is never downgraded.
func (c *Cache) Merge(items []*model.Notification) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, n := range items {
		if n == nil || n.ID == "" {
			continue
		}
		if cur, ok := c.items[n.ID]; ok {
			if n.IsRead && !cur.IsRead {
				cur.IsRead = true
				c.unread--
			}
			continue
		}
		if c.insertLocked(n) {
			added++
		}
	}
	return added
}

func (c *Cache) insertLocked(n *model.Notification) bool {
	if _, ok := c.items[n.ID]; ok {
		return false
	}

	cp := *n
	c.items[n.ID] = &cp
	c.order = append(c.order, n.ID)
	if !cp.IsRead {
		c.unread++
	}
	return true
}

func (c *Cache) Has(id model.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// Get returns a copy of the entry.
func (c *Cache) Get(id model.ID) (model.Notification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.items[id]
	if !ok {
		return model.Notification{}, false
	}
	return *n, true
}

// MarkRead flips the read flag of one entry. It reports false for unknown ids
// and for entries already read.
func (c *Cache) MarkRead(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[id]
	if !ok || n.IsRead {
		return false
	}
	n.IsRead = true
	c.unread--
	return true
}

// MarkAllRead returns the number of entries that changed.
func (c *Cache) MarkAllRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, n := range c.items {
		if !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	c.unread = 0
	return changed
}

// DeleteRead removes every read entry and returns how many were removed.
func (c *Cache) DeleteRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	removed := 0
	for _, id := range c.order {
		if c.items[id].IsRead {
			delete(c.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return removed
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.items)
	c.order = nil
	c.unread = 0
}

// List returns copies of all entries, newest first.
func (c *Cache) List() []model.Notification {
	c.mu.RLock()
	out := make([]model.Notification, 0, len(c.order))
	rank := make(map[model.ID]int, len(c.order))
	for i, id := range c.order {
		out = append(out, *c.items[id])
		rank[id] = i
	}
	c.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.Notification) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		return rank[b.ID] - rank[a.ID]
	})
	return out
}

func (c *Cache) Unread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
