package testflow

import (
	"github.com/testflow-dev/testflow/metrics"
	"github.com/testflow-dev/testflow/runner"
)

// MetricsReporter is responsible for reporting metrics from run results.
type MetricsReporter interface {
	ReportResults(result *runner.RunResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the run's outcome to the metrics system.
func (r *DefaultMetricsReporter) ReportResults(result *runner.RunResult) {
	for _, outcome := range result.Outcomes {
		metrics.RecordTest(result.RunID, outcome.Result)
		metrics.RecordRetries(result.RunID, outcome.Attempts)
	}

	status := "pass"
	if !result.Passed() {
		status = "fail"
	}
	if result.Cancelled {
		status = "cancelled"
	}
	metrics.RecordRun(result.RunID, status, result.Stats.Total, result.Duration)
}
