package pool

import (
	"sync"
	"time"
)

// Clock supplies the block timestamp an operation executes in.
type Clock interface {
	BlockTimestamp() uint32
}

// SystemClock reads wall-clock seconds, truncated to 32 bits.
type SystemClock struct{}

func (SystemClock) BlockTimestamp() uint32 {
	return uint32(time.Now().Unix())
}

// ManualClock is a clock that only moves when told to. It is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now uint32
}

// NewManualClock returns a clock stopped at now.
func NewManualClock(now uint32) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) BlockTimestamp() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by seconds, wrapping like a 32-bit timestamp.
func (c *ManualClock) Advance(seconds uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}
