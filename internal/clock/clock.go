package clock

import (
	"sync"
	"time"
)

// Clock is the single time source read by the coordinator and jobs.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a clock backed by time.Now in UTC.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a controllable clock for tests and replays.
type Manual struct {
	mu      sync.Mutex
	current time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set moves the clock to t.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Manual) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
