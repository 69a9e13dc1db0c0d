package testflow

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/runner"
)

// RunExecutor is responsible for executing one full suite run.
type RunExecutor interface {
	Execute(ctx context.Context) (*runner.RunResult, error)
}

// CoordinatedRunExecutor implements RunExecutor on top of a run coordinator.
type CoordinatedRunExecutor struct {
	coordinator *runner.Coordinator
	logger      log.Logger
}

// NewCoordinatedRunExecutor creates a new CoordinatedRunExecutor.
func NewCoordinatedRunExecutor(coordinator *runner.Coordinator, logger log.Logger) *CoordinatedRunExecutor {
	return &CoordinatedRunExecutor{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Execute starts a run and blocks until it settles.
func (e *CoordinatedRunExecutor) Execute(ctx context.Context) (*runner.RunResult, error) {
	e.logger.Info("Running all tests...")
	handle := e.coordinator.Start(ctx)

	// Forward context cancellation as a cooperative cancel so in-flight
	// tests settle aborted instead of being torn down mid-message.
	stop := context.AfterFunc(ctx, handle.Cancel)
	defer stop()

	result, err := handle.Wait(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Error("Error running tests", "error", err)
		return nil, err
	}
	e.logger.Info("Test run completed", "run_id", result.RunID, "passed", result.Passed())
	return result, nil
}
