// Package testutil provides deterministic test doubles for the
// reconciliation engine.
package testutil

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing fetch timestamps for tests.
//
// Merge behavior depends entirely on timestamp ordering, so tests need
// timestamps that are reproducible across runs and never collide.
// Clock starts at a fixed epoch and advances by a fixed step per call.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock returns a clock starting at the given epoch, advancing by
// step on each Next call.
func NewClock(epoch time.Time, step time.Duration) *Clock {
	return &Clock{now: epoch.UTC(), step: step}
}

// Next advances the clock and returns the new timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Current returns the latest handed-out timestamp without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
