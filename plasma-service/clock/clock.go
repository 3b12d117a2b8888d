// Package clock provides wall and deterministic time sources.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// DeterministicClock only moves when advanced explicitly.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewDeterministicClock(now time.Time) *DeterministicClock {
	return &DeterministicClock{now: now}
}

func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AdvanceTime moves the clock forward by d. Negative durations are ignored.
func (c *DeterministicClock) AdvanceTime(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
