package runner

import (
	"sync"
	"sync/atomic"
)

// Canceller is the run-level cancellation controller. Cancel is idempotent
// and safe to invoke before the run begins. Cancellation is cooperative: the
// coordinator checks Cancelled before scheduling each not-yet-started test,
// and in-flight executors watch Done to force their attempt to aborted.
type Canceller struct {
	once sync.Once
	ch   chan struct{}
}

// NewCanceller creates an armed, not-yet-cancelled controller.
func NewCanceller() *Canceller {
	return &Canceller{ch: make(chan struct{})}
}

// Cancel requests cancellation. Subsequent calls are no-ops.
func (c *Canceller) Cancel() {
	c.once.Do(func() { close(c.ch) })
}

// Cancelled reports whether cancellation has been requested.
func (c *Canceller) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation.
func (c *Canceller) Done() <-chan struct{} {
	return c.ch
}

// outcomeGuard resolves the race between natural attempt completion and a
// forced abort. Exactly one caller wins the claim, so exactly one terminal
// finish is ever emitted per attempt.
type outcomeGuard struct {
	claimed atomic.Bool
}

func (g *outcomeGuard) claim() bool {
	return g.claimed.CompareAndSwap(false, true)
}
