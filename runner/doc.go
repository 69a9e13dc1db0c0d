// Package runner executes declared tests in isolated worker processes.
//
// The main components are:
//   - ProcessSpawner: launches one worker process per attempt and converts
//     its pipes into a single ordered message stream
//   - Executor: drives one attempt's state machine (timeout, error
//     containment, result derivation, terminal finish)
//   - RetryRunner: re-runs failed attempts up to the configured limit
//   - Canceller: cooperative run-level cancellation with a per-attempt
//     outcome guard
//   - Coordinator: schedules all tests of a run, multiplexes their message
//     streams into the dispatcher, and settles the run outcome
//
// These components work together to contain per-test failures: a crash,
// hang or panic inside one worker never unwinds past its executor.
package runner
