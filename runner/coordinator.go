package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/testflow-dev/testflow/clock"
	"github.com/testflow-dev/testflow/dispatch"
	"github.com/testflow-dev/testflow/lister"
	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

// CoordinatorConfig configures a suite run coordinator.
type CoordinatorConfig struct {
	Lister     *lister.Lister
	Spawner    ProcessSpawner
	Dispatcher *dispatch.Dispatcher
	Clock      clock.Clock
	RunConfig  types.RunConfig

	// RunID identifies the run in results, logs and metrics. Empty means a
	// fresh UUID per run.
	RunID string

	// Concurrency bounds how many tests run at once. Zero or negative
	// means serial execution.
	Concurrency int

	// Grace is how long a timed-out or aborted worker may keep running
	// before it is killed.
	Grace time.Duration

	// ProgressInterval is how often in-flight progress is logged.
	ProgressInterval time.Duration

	Logger log.Logger
}

// Coordinator drives a whole suite run: listing, scheduled execution with
// retries, and ordered delivery of every message to the dispatcher.
type Coordinator struct {
	lister           *lister.Lister
	retry            *RetryRunner
	dispatcher       *dispatch.Dispatcher
	collector        ResultCollector
	clock            clock.Clock
	cfg              types.RunConfig
	runID            string
	concurrency      int
	progressInterval time.Duration
	tracer           trace.Tracer
	log              log.Logger
}

// NewCoordinator creates a coordinator from the given configuration.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Lister == nil {
		return nil, fmt.Errorf("lister is required")
	}
	if cfg.Spawner == nil {
		return nil, fmt.Errorf("process spawner is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	attempts := cfg.RunConfig.Attempts
	if attempts < 1 {
		attempts = 1
	}

	executor, err := NewExecutor(cfg.Spawner, cfg.RunConfig.Timeout, cfg.Grace, cfg.Logger)
	if err != nil {
		return nil, err
	}
	retry, err := NewRetryRunner(executor, attempts, cfg.Logger)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Coordinator{
		lister:           cfg.Lister,
		retry:            retry,
		dispatcher:       cfg.Dispatcher,
		collector:        NewResultCollector(),
		clock:            cfg.Clock,
		cfg:              cfg.RunConfig,
		runID:            cfg.RunID,
		concurrency:      concurrency,
		progressInterval: cfg.ProgressInterval,
		tracer:           otel.Tracer("suite runner"),
		log:              cfg.Logger,
	}, nil
}

// RunHandle is the observable state of one in-flight run. Cancel may be
// called at any time, from any goroutine, any number of times.
type RunHandle struct {
	canceller *Canceller
	done      chan struct{}
	result    *RunResult
	err       error
}

// Cancel requests cooperative cancellation: no further test starts, and
// in-flight tests are forced to an aborted terminal result.
func (h *RunHandle) Cancel() {
	h.canceller.Cancel()
}

// Wait blocks until the run settles or ctx expires. It may be called by any
// number of goroutines; every caller observes the same result.
func (h *RunHandle) Wait(ctx context.Context) (*RunResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// Start begins a suite run and returns immediately with its handle. The
// run proceeds in the background; reporters receive its messages through the
// dispatcher as they happen, and the dispatcher is always notified of
// completion, including after listing failures and cancellation.
func (c *Coordinator) Start(ctx context.Context) *RunHandle {
	h := &RunHandle{
		canceller: NewCanceller(),
		done:      make(chan struct{}),
	}
	go c.run(ctx, h)
	return h
}

func (c *Coordinator) run(ctx context.Context, h *RunHandle) {
	defer close(h.done)
	defer c.dispatcher.Done()

	runID := c.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	defer span.End()

	c.log.Info("Starting suite run", "runID", runID, "suiteFiles", len(c.cfg.SuiteFiles), "concurrency", c.concurrency)

	started := c.clock.Now()
	tests, err := c.lister.List(ctx, c.cfg, started)
	if err != nil {
		c.log.Error("Listing failed", "runID", runID, "error", err)
		h.err = err
		return
	}
	c.log.Info("Listed tests", "runID", runID, "tests", len(tests))

	result := c.collector.NewRunResult(runID, len(tests), started)
	progress := newProgressTracker(c.log, c.progressInterval, len(tests))
	defer progress.stop()

	concurrency := c.concurrency
	if concurrency > len(tests) && len(tests) > 0 {
		concurrency = len(tests)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c.runOne(ctx, result, tests[i], i, h.canceller, progress)
			}
		}()
	}
	for i := range tests {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	c.collector.Finalize(result, c.clock.Now(), h.canceller.Cancelled())
	h.result = result

	c.log.Info("Suite run settled",
		"runID", runID,
		"total", result.Stats.Total,
		"passed", result.Stats.Passed,
		"failed", result.Stats.Failed,
		"skipped", result.Stats.Skipped,
		"timedOut", result.Stats.TimedOut,
		"aborted", result.Stats.Aborted,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
}

// runOne settles one declared test. Tests not yet started when cancellation
// arrives never start: they settle aborted with zero attempts and emit no
// messages at all.
func (c *Coordinator) runOne(ctx context.Context, result *RunResult, desc types.TestDescriptor, index int, canceller *Canceller, progress *progressTracker) {
	name := desc.Path.FullName()

	if canceller.Cancelled() {
		c.collector.AddOutcome(result, index, types.TestOutcome{
			Descriptor: desc,
			Result:     types.ResultAborted,
		})
		progress.completeTest(name, types.ResultAborted)
		return
	}

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("test %s", name))
	defer span.End()

	progress.startTest(name)
	start := c.clock.Now()

	emit := func(env wire.Envelope) {
		c.dispatcher.Deliver(desc.Path, env)
	}
	report, attempts := c.retry.RunTest(ctx, desc, canceller.Done(), emit)

	duration := c.clock.Now().Sub(start)
	c.collector.AddOutcome(result, index, types.TestOutcome{
		Descriptor: desc,
		Result:     report.Result,
		Attempts:   attempts,
		Duration:   duration,
		Slow:       c.cfg.SlowThreshold > 0 && duration > c.cfg.SlowThreshold,
		FirstError: report.FirstError,
		OutputTail: report.OutputTail,
	})
	progress.completeTest(name, report.Result)
}
