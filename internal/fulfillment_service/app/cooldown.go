package app

import (
	"sync"
	"time"
)

// Cooldown remembers when the service last wrote to a buyer. While it is
// active, incoming events are dropped.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, now: time.Now}
}

// Active reports whether less than the window has passed since the last reply.
func (c *Cooldown) Active() bool {
	if c == nil || c.window <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last.IsZero() {
		return false
	}
	return c.now().Sub(c.last) < c.window
}

// Mark records an outbound reply.
func (c *Cooldown) Mark() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.last = c.now()
	c.mu.Unlock()
}
