package testutil

import (
	"sync"
	"time"
)

// DefaultDate is the date a new DeterministicClock starts on.
const DefaultDate = "2024-01-01"

// DeterministicClock is a settable wall clock for tests. Writes land in the
// partition of whatever date the clock is set to.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewDeterministicClock creates a clock at noon UTC on DefaultDate.
func NewDeterministicClock() *DeterministicClock {
	c := &DeterministicClock{}
	c.SetDate(DefaultDate)
	return c
}

// Now returns the current time. Implements store.Clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SetDate moves the clock to noon UTC on date (YYYY-MM-DD). It panics on a
// malformed date.
func (c *DeterministicClock) SetDate(date string) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic("testutil: " + err.Error())
	}
	c.Set(t.Add(12 * time.Hour))
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Date returns the current date as YYYY-MM-DD.
func (c *DeterministicClock) Date() string {
	return c.Now().Format("2006-01-02")
}
