package runner

import (
	"sync"
	"time"

	"github.com/testflow-dev/testflow/types"
)

// RunResult is the aggregate of one suite run. Outcomes holds one settled
// entry per declared test, in declaration order.
type RunResult struct {
	RunID     string
	Outcomes  []types.TestOutcome
	Stats     types.RunStats
	Started   time.Time
	Duration  time.Duration
	Cancelled bool
}

// Passed reports whether every test settled with a passing result and the
// run was not cancelled.
func (r *RunResult) Passed() bool {
	if r.Cancelled {
		return false
	}
	for _, o := range r.Outcomes {
		if !o.Result.Passing() {
			return false
		}
	}
	return true
}

// ResultCollector aggregates per-test outcomes into a RunResult.
type ResultCollector interface {
	// NewRunResult initializes a result sized for total declared tests.
	NewRunResult(runID string, total int, started time.Time) *RunResult

	// AddOutcome records the settled outcome of the test at the given
	// declaration index. Safe for concurrent use across pool workers.
	AddOutcome(result *RunResult, index int, outcome types.TestOutcome)

	// Finalize computes run statistics once every test has settled.
	Finalize(result *RunResult, ended time.Time, cancelled bool)
}

var _ ResultCollector = (*resultCollector)(nil)

type resultCollector struct {
	mu sync.Mutex
}

// NewResultCollector creates a new result collector.
func NewResultCollector() ResultCollector {
	return &resultCollector{}
}

func (c *resultCollector) NewRunResult(runID string, total int, started time.Time) *RunResult {
	return &RunResult{
		RunID:    runID,
		Outcomes: make([]types.TestOutcome, total),
		Started:  started,
	}
}

func (c *resultCollector) AddOutcome(result *RunResult, index int, outcome types.TestOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result.Outcomes[index] = outcome
}

func (c *resultCollector) Finalize(result *RunResult, ended time.Time, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result.Duration = ended.Sub(result.Started)
	result.Cancelled = cancelled
	result.Stats = types.RunStats{}
	for _, o := range result.Outcomes {
		result.Stats.Record(o.Result)
	}
}
