package runner

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

// RetryRunner wraps the executor, re-running failed attempts up to the
// configured limit. Only failure results are retried; success, skipped,
// timeout and aborted are final on first occurrence. A retry message
// separates consecutive attempts, and the single terminal finish closes the
// test only once no further attempt will run.
type RetryRunner struct {
	executor *Executor
	attempts int
	log      log.Logger
}

// NewRetryRunner creates a retry controller allowing up to attempts runs
// per test.
func NewRetryRunner(executor *Executor, attempts int, logger log.Logger) (*RetryRunner, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if attempts < 1 {
		return nil, fmt.Errorf("attempt count must be at least 1, got %d", attempts)
	}
	if logger == nil {
		logger = log.New()
	}
	return &RetryRunner{executor: executor, attempts: attempts, log: logger}, nil
}

// RunTest runs desc until a non-failure result or the attempt limit is
// reached, then emits the test's terminal finish unless the executor already
// closed the stream. It returns the final attempt's report and the number of
// attempts executed.
func (r *RetryRunner) RunTest(ctx context.Context, desc types.TestDescriptor, cancelled <-chan struct{}, emit Sink) (AttemptReport, int) {
	var report AttemptReport
	used := 0
	for attempt := 0; attempt < r.attempts; attempt++ {
		report = r.executor.RunAttempt(ctx, desc, attempt, cancelled, emit)
		used = attempt + 1
		if report.Result != types.ResultFailure {
			break
		}
		if attempt == r.attempts-1 {
			break
		}
		r.log.Debug("Retrying failed test", "test", desc.Path.FullName(), "nextAttempt", attempt+1)
		emit(wire.Retry())
	}
	if !report.FinishEmitted {
		emit(wire.Finish(report.Result, report.Result.ExitCode()))
		report.FinishEmitted = true
	}
	return report, used
}
