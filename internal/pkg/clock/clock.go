package clock

import (
	"sync"
	"time"
)

// Clock abstracts the current time so time-driven transitions can be tested.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

// NewRealClock returns the system clock.
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MockClock is a settable clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

func (c *MockClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}
