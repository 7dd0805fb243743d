package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

// Now returns the current time.
func (c SystemClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now()
	}
	return time.Now().In(c.Loc)
}

// FixedClock always returns the same instant until moved. Safe for concurrent use.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// OverridableClock delegates to a base clock but can pin the time of day.
// The date keeps following the base clock; only hour and minute are replaced.
type OverridableClock struct {
	base Clock
	cal  Calendar

	mu     sync.RWMutex
	pinned bool
	hour   int
	minute int
}

// NewOverridableClock wraps base.
func NewOverridableClock(base Clock, cal Calendar) *OverridableClock {
	return &OverridableClock{base: base, cal: cal}
}

// Now returns the base time, or today's date at the pinned hour:minute.
func (c *OverridableClock) Now() time.Time {
	now := c.base.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.pinned {
		return now
	}
	return c.cal.At(now, c.hour, c.minute)
}

// Pin fixes the time of day returned by Now.
func (c *OverridableClock) Pin(hour, minute int) {
	c.mu.Lock()
	c.pinned, c.hour, c.minute = true, hour, minute
	c.mu.Unlock()
}

// Reset removes the pin.
func (c *OverridableClock) Reset() {
	c.mu.Lock()
	c.pinned = false
	c.mu.Unlock()
}

// Pinned reports whether a time of day is pinned.
func (c *OverridableClock) Pinned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pinned
}
