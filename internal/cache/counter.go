package cache

import "sync/atomic"

// atomicCounter is a tiny wrapper so hit/miss counters can be bumped
// without holding the mutex that guards recency bookkeeping.
type atomicCounter struct {
	v atomic.Uint64
}

func (c *atomicCounter) add(n uint64) {
	c.v.Add(n)
}

func (c *atomicCounter) load() uint64 {
	return c.v.Load()
}
