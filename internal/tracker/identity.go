package tracker

import "sync"

// IdentityCache is the set of tab ids known to exist. It only answers
// membership; insertion order is irrelevant.
type IdentityCache struct {
	mu  sync.Mutex
	ids map[TabID]struct{}
}

func NewIdentityCache() *IdentityCache {
	return &IdentityCache{ids: make(map[TabID]struct{})}
}

// Observe inserts id and reports whether it was previously unknown.
func (c *IdentityCache) Observe(id TabID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

// Evict forgets id. Unknown ids are ignored.
func (c *IdentityCache) Evict(id TabID) {
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
}

func (c *IdentityCache) Contains(id TabID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

func (c *IdentityCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
