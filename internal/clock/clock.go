// Package clock provides a mockable time source.
// In production it wraps time.Now(). Tests inject a MockClock so journal ids
// and timestamps are reproducible.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock provides the actual system time.
type RealClock struct{}

// Now returns the current system time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a test clock with controllable time.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
	step    time.Duration
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// NewSteppingClock creates a mock clock that advances by step after every
// Now call. Useful when each reading must be distinct.
func NewSteppingClock(t time.Time, step time.Duration) *MockClock {
	return &MockClock{current: t, step: step}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	if c.step == 0 {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.current
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(t)
}

// Set sets the mock time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances the mock time by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Default is the process-wide clock.
var Default Clock = &RealClock{}

// Now returns the current time from the default clock.
func Now() time.Time {
	return Default.Now()
}

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration {
	return Default.Since(t)
}
