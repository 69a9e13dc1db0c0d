// Package clock provides the run-wide time source. Every message timestamp
// in a suite run is drawn from a single Clock, so tests can substitute a
// deterministic one.
package clock

import (
	"sync"
	"time"
)

// Clock is a pluggable time source.
type Clock interface {
	Now() time.Time
}

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Fake is a deterministic Clock for tests. Each Now call returns the current
// reading and then advances it by Step, so successive readings are strictly
// increasing and fully predictable.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFake returns a Fake starting at start, advancing by step per reading.
func NewFake(start time.Time, step time.Duration) *Fake {
	return &Fake{now: start, Step: step}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.now
	f.now = f.now.Add(f.Step)
	return t
}

// Advance moves the clock forward without consuming a reading.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
