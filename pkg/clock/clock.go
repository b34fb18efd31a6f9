// Package clock provides the time source used by every cadence and escalation
// computation so tests can move virtual time deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock is the injected "now" source.
type Clock interface {
	Now() time.Time
}

// System reads wall-clock time in UTC.
type System struct{}

// NewSystem returns the wall-clock implementation.
func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

// Fake is a manually advanced clock.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set pins the clock at t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
