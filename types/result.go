package types

import "time"

// TestResult is the terminal result of one attempt, and by extension of a
// test once its final attempt settles.
type TestResult string

const (
	ResultSuccess TestResult = "success"
	ResultFailure TestResult = "failure"
	ResultSkipped TestResult = "skipped"
	ResultTimeout TestResult = "timeout"
	ResultAborted TestResult = "aborted"
)

// Passing reports whether the result counts toward a successful run.
func (r TestResult) Passing() bool {
	return r == ResultSuccess || r == ResultSkipped
}

// ExitCode maps a result to the numeric code carried by the finish message.
// Success and skipped map to zero, everything else is nonzero.
func (r TestResult) ExitCode() int {
	switch r {
	case ResultSuccess, ResultSkipped:
		return 0
	case ResultFailure:
		return 1
	default:
		return 2
	}
}

// Valid reports whether r is one of the five terminal results.
func (r TestResult) Valid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultSkipped, ResultTimeout, ResultAborted:
		return true
	}
	return false
}

// TestOutcome captures the settled state of one test after its final attempt.
type TestOutcome struct {
	Descriptor TestDescriptor
	Result     TestResult
	Attempts   int           // attempts actually executed
	Duration   time.Duration // wall time across all attempts
	Slow       bool          // exceeded the slow threshold (diagnostic)
	FirstError string        // detail of the first error message, if any
	OutputTail string        // bounded tail of captured stdout
}

// RunStats aggregates final results at run level.
type RunStats struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	TimedOut int
	Aborted  int
}

// Record counts one settled test.
func (s *RunStats) Record(r TestResult) {
	s.Total++
	switch r {
	case ResultSuccess:
		s.Passed++
	case ResultFailure:
		s.Failed++
	case ResultSkipped:
		s.Skipped++
	case ResultTimeout:
		s.TimedOut++
	case ResultAborted:
		s.Aborted++
	}
}
