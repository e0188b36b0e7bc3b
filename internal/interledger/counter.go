package interledger

import "sync"

// Counter allocates the process-wide monotonic IDs carried by outbound
// interledger events. IDs start at zero.
type Counter struct {
	mu   sync.Mutex
	next uint64
}

func (c *Counter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}
