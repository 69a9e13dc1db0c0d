// Package dispatch fans attempt messages out to registered reporters.
// Deliveries are serialized under one lock, which gives every message a
// timestamp from the single run-wide clock, keeps per-test order intact,
// and guarantees nothing is observed after a test's finish.
package dispatch

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/clock"
	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

// Reporter consumes the message stream of a suite run. Implementations are
// called in registration order and must not retain the envelope.
type Reporter interface {
	GotMessage(testPath types.TestPath, message wire.Envelope, timestamp time.Time)
	Done(timestamp time.Time)
}

// Dispatcher delivers (TestPath, message, timestamp) triples to reporters.
type Dispatcher struct {
	mu        sync.Mutex
	reporters []Reporter
	clock     clock.Clock
	log       log.Logger
	finished  map[string]bool
	done      bool
}

// New creates a Dispatcher over the given reporters, in delivery order.
func New(clk clock.Clock, logger log.Logger, reporters ...Reporter) *Dispatcher {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = log.New()
	}
	return &Dispatcher{
		reporters: reporters,
		clock:     clk,
		log:       logger,
		finished:  make(map[string]bool),
	}
}

// Deliver stamps the message with the run clock and hands it to every
// reporter. Messages arriving for a test after its finish are dropped; a
// worker is not guaranteed to stop emitting promptly after an abort.
func (d *Dispatcher) Deliver(testPath types.TestPath, message wire.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := testPath.Key()
	if d.finished[key] {
		d.log.Debug("Dropping message after finish", "test", testPath.FullName(), "type", message.Type)
		return
	}
	if d.done {
		d.log.Warn("Dropping message delivered after run completion", "test", testPath.FullName(), "type", message.Type)
		return
	}
	if message.Terminal() {
		d.finished[key] = true
	}

	timestamp := d.clock.Now()
	for _, r := range d.reporters {
		r.GotMessage(testPath, message, timestamp)
	}
}

// Done notifies reporters that the run, including any cancellation
// aftermath, has settled. Further deliveries are dropped.
func (d *Dispatcher) Done() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done {
		return
	}
	d.done = true

	timestamp := d.clock.Now()
	for _, r := range d.reporters {
		r.Done(timestamp)
	}
}
