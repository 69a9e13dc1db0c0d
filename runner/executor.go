package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

// Sink receives one attempt's messages in emission order. The coordinator
// binds it to the dispatcher with the test's path.
type Sink func(message wire.Envelope)

// AttemptReport is the settled state of one attempt.
type AttemptReport struct {
	Result     types.TestResult
	FirstError string // detail of the first error message, if any
	OutputTail string // bounded tail of captured stdout/stderr

	// FinishEmitted is set when the executor already closed the test's
	// message stream (skip and abort paths). Otherwise the retry layer owns
	// the terminal finish, since a failed attempt may be retried rather
	// than closed.
	FinishEmitted bool
}

// Executor runs one attempt of one test in an isolated worker process and
// translates its lifecycle into the message skeleton. Per-test failures never
// unwind past the executor; they resolve into messages plus a terminal result.
type Executor struct {
	spawner ProcessSpawner
	timeout time.Duration
	grace   time.Duration
	log     log.Logger
}

// NewExecutor creates an executor. timeout bounds each attempt (zero
// disables it); grace is how long a timed-out or aborted worker may keep
// running before it is killed.
func NewExecutor(spawner ProcessSpawner, timeout, grace time.Duration, logger log.Logger) (*Executor, error) {
	if spawner == nil {
		return nil, errors.New("process spawner is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Executor{spawner: spawner, timeout: timeout, grace: grace, log: logger}, nil
}

// RunAttempt executes attempt number attempt of desc. The test's start
// message opens attempt 0 only; retried attempts re-enter at their
// before-hook phase. cancelled forces the attempt to a single aborted
// terminal result; the outcome guard ensures the abort never races a
// natural completion into duplicate terminal messages.
func (e *Executor) RunAttempt(ctx context.Context, desc types.TestDescriptor, attempt int, cancelled <-chan struct{}, emit Sink) AttemptReport {
	if desc.Skipped {
		// Skipped tests execute nothing: no hooks, no body, no process.
		emit(wire.Start(true))
		emit(wire.Finish(types.ResultSkipped, types.ResultSkipped.ExitCode()))
		return AttemptReport{Result: types.ResultSkipped, FinishEmitted: true}
	}

	timeout := e.timeout
	if desc.Timeout > 0 {
		timeout = desc.Timeout
	}

	guard := &outcomeGuard{}
	tail := newTailBuffer(0)

	handle, err := e.spawner.Spawn(ctx, SpawnRequest{Descriptor: desc, Attempt: attempt})
	if err != nil {
		// The attempt still gets a well-formed message stream.
		e.log.Error("Failed to spawn worker", "test", desc.Path.FullName(), "attempt", attempt, "error", err)
		detail := fmt.Sprintf("failed to spawn worker: %v", err)
		if attempt == 0 {
			emit(wire.Start(false))
		}
		emit(wire.Error(wire.InUncaught, "", detail))
		return AttemptReport{Result: types.ResultFailure, FirstError: detail}
	}

	// All messages flow through deliver so the abort watcher can cut the
	// stream off at the synthesized aborted finish.
	var emitMu sync.Mutex
	abortDeclared := false
	deliver := func(env wire.Envelope) {
		emitMu.Lock()
		defer emitMu.Unlock()
		if abortDeclared {
			return
		}
		emit(env)
	}

	// The abort watcher runs beside the message loop: cancellation has to
	// interrupt the attempt even while it blocks draining messages or
	// waiting on a worker that closed its pipe without exiting. The guard
	// decides abort vs natural completion exactly once.
	attemptDone := make(chan struct{})
	defer close(attemptDone)
	go func() {
		select {
		case <-attemptDone:
			return
		case <-cancelled:
		}
		if guard.claim() {
			emitMu.Lock()
			abortDeclared = true
			emit(wire.Finish(types.ResultAborted, types.ResultAborted.ExitCode()))
			emitMu.Unlock()
		}
		_ = handle.Kill()
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		timerC = timer.C
		defer timer.Stop()
	}
	var graceKill *time.Timer
	defer func() {
		if graceKill != nil {
			graceKill.Stop()
		}
	}()

	firstError := ""
	timedOut := false
	startSeen := false

	// A worker that dies or hangs before reporting anything never sent its
	// start message; the attempt's stream still has to open with one.
	ensureStart := func() {
		if attempt == 0 && !startSeen {
			startSeen = true
			deliver(wire.Start(false))
		}
	}

	messages := handle.Messages()
	for messages != nil {
		select {
		case env, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			switch env.Type {
			case wire.TypeFinish, wire.TypeTimeout, wire.TypeRetry:
				// Coordinator-owned message types; a well-behaved worker
				// never sends them.
				e.log.Warn("Dropping reserved message type from worker", "test", desc.Path.FullName(), "type", env.Type)
				continue
			case wire.TypeStart:
				if attempt > 0 {
					continue
				}
				startSeen = true
			case wire.TypeError:
				if firstError == "" {
					firstError = fmt.Sprintf("%v", env.Value)
				}
			case wire.TypeStdout, wire.TypeStderr:
				_, _ = tail.Write(env.Data)
			}
			deliver(env)
		case <-timerC:
			timerC = nil
			timedOut = true
			// The worker is not guaranteed to stop promptly: keep
			// forwarding whatever it still produces, and only kill it
			// once the grace period lapses.
			ensureStart()
			deliver(wire.Timeout())
			graceKill = time.AfterFunc(e.grace, func() {
				_ = handle.Kill()
			})
		}
	}

	waitErr := handle.Wait()

	// A worker that died without reporting an error is an uncaught fault:
	// crash containment turns it into a failed attempt, not a failed run.
	if waitErr != nil && !timedOut && firstError == "" {
		detail := fmt.Sprintf("worker exited abnormally: %v", waitErr)
		firstError = detail
		ensureStart()
		deliver(wire.Error(wire.InUncaught, "", detail))
	}

	result := types.ResultSuccess
	if firstError != "" {
		result = types.ResultFailure
	}
	if timedOut {
		result = types.ResultTimeout
	}

	if !guard.claim() {
		// The abort watcher won the race and already closed the stream.
		return AttemptReport{
			Result:        types.ResultAborted,
			FirstError:    firstError,
			OutputTail:    tail.String(),
			FinishEmitted: true,
		}
	}
	return AttemptReport{Result: result, FirstError: firstError, OutputTail: tail.String()}
}
