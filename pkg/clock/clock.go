// Package clock provides the time source used for cooperative timeouts.
// Production code uses Real; tests drive a Fake forward explicitly.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant. Durations are always computed with
// Sub on values returned by the same Clock, so a Real clock keeps Go's
// monotonic reading and is immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

// Real is the process clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock. The zero value starts at the Unix epoch.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.now.IsZero() {
		f.now = time.Unix(0, 0)
	}
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.now.IsZero() {
		f.now = time.Unix(0, 0)
	}
	f.now = f.now.Add(d)
}
