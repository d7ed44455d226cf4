package resource

import "sync"

// Counter is an Observer that tallies allocations and frees per kind.
type Counter struct {
	created     map[Kind]int
	dropped     map[Kind]int
	doubleDrops int
	mu          sync.Mutex
}

func NewCounter() *Counter {
	return &Counter{
		created: make(map[Kind]int),
		dropped: make(map[Kind]int),
	}
}

func (c *Counter) OnResourceEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Type {
	case EventCreated:
		c.created[e.Kind]++
	case EventDropped:
		c.dropped[e.Kind]++
	case EventDoubleDrop:
		c.doubleDrops++
	}
}

// Created returns the number of objects of kind created so far.
func (c *Counter) Created(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[kind]
}

// Dropped returns the number of objects of kind released so far.
func (c *Counter) Dropped(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped[kind]
}

// Allocs returns the total number of creations.
func (c *Counter) Allocs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.created {
		n += v
	}
	return n
}

// Frees returns the total number of releases.
func (c *Counter) Frees() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.dropped {
		n += v
	}
	return n
}

// Live returns creations minus releases for kind.
func (c *Counter) Live(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[kind] - c.dropped[kind]
}

// DoubleDrops returns how many releases targeted a dead handle.
func (c *Counter) DoubleDrops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doubleDrops
}
