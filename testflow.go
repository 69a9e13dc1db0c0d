// Package testflow wires the suite orchestration engine into a runnable
// service: manifest listing, worker execution with retries, ordered message
// reporting, and run-once or periodic scheduling.
package testflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/testflow-dev/testflow/clock"
	"github.com/testflow-dev/testflow/dispatch"
	"github.com/testflow-dev/testflow/exitcodes"
	"github.com/testflow-dev/testflow/lister"
	"github.com/testflow-dev/testflow/logging"
	"github.com/testflow-dev/testflow/metrics"
	"github.com/testflow-dev/testflow/registry"
	"github.com/testflow-dev/testflow/reporting"
	"github.com/testflow-dev/testflow/runner"
	"github.com/testflow-dev/testflow/types"
)

// Service runs test suites against a worker command, once or on an interval.
type Service struct {
	ctx       context.Context
	config    *Config
	version   string
	manifest  *registry.Manifest
	lister    *lister.Lister
	spawner   runner.ProcessSpawner
	clock     clock.Clock
	scheduler RunScheduler
	formatter ResultFormatter
	metrics   MetricsReporter
	result    *runner.RunResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates a Service from config. The manifest is loaded eagerly so a
// malformed manifest fails startup rather than the first run.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Service, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating service with config",
		"manifest", config.ManifestPath,
		"worker", config.WorkerCommand,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"attempts", config.Attempts)

	manifest, err := registry.NewManifest(registry.Config{
		Log:            config.Log,
		ManifestFile:   config.ManifestPath,
		DefaultTimeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	lst, err := lister.New(manifest, config.ListingDeadline, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create lister: %w", err)
	}

	spawner, err := runner.NewExecSpawner(config.WorkerCommand, config.WorkDir, nil, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker spawner: %w", err)
	}

	s := &Service{
		ctx:              ctx,
		config:           config,
		version:          version,
		manifest:         manifest,
		lister:           lst,
		spawner:          spawner,
		clock:            clock.System(),
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(nil, config.Log),
		metrics:          NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	s.scheduler.RegisterCallback(s.runTests)

	config.Log.Info("Service created", "tests", len(manifest.Descriptors()))
	return s, nil
}

// Start begins scheduled execution. In run-once mode it blocks for the single
// run, returns a TestFailureError when tests failed, and triggers shutdown on
// success.
func (s *Service) Start(ctx context.Context) error {
	// Runtime panics must surface as exit code 2, not a stack trace and
	// exit 2 from the Go runtime after half-written output.
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx

	if s.config.RunOnce {
		s.config.Log.Info("Starting testflow in run-once mode", "version", s.version)
	} else {
		s.config.Log.Info("Starting testflow in continuous mode", "version", s.version, "interval", s.config.RunInterval)
	}

	if err := s.scheduler.Start(ctx); err != nil {
		s.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if s.config.RunOnce {
		s.config.Log.Info("Run completed, exiting (run-once mode)")

		if s.result != nil && !s.result.Passed() {
			s.config.Log.Warn("Run-once suite run completed with failures, returning exit code 1")
			return NewTestFailureError(reporting.StatsLine(s.result.Stats))
		}

		// Only needed in run-once mode and when all tests passed.
		go func() {
			s.shutdownCallback(nil)
		}()
		return nil
	}

	s.config.Log.Debug("testflow started successfully")
	return nil
}

// runTests executes one full suite run and processes its results.
func (s *Service) runTests() error {
	runID := uuid.New().String()

	reporters := []dispatch.Reporter{
		reporting.NewConsoleReporter(os.Stdout, s.config.SlowThreshold, s.config.Verbose),
	}
	fileReporter, err := logging.NewFileReporter(s.config.LogDir, runID, s.config.Log)
	if err != nil {
		s.config.Log.Warn("Run artifacts disabled, could not create file reporter", "error", err)
	} else {
		reporters = append(reporters, fileReporter)
	}

	// The dispatcher is terminal once its run completes, so each run gets a
	// fresh dispatcher and coordinator over the shared lister and spawner.
	coordinator, err := runner.NewCoordinator(runner.CoordinatorConfig{
		Lister:     s.lister,
		Spawner:    s.spawner,
		Dispatcher: dispatch.New(s.clock, s.config.Log, reporters...),
		Clock:      s.clock,
		RunConfig: types.RunConfig{
			SuiteFiles:    s.manifest.SuiteFiles(),
			Timeout:       s.config.Timeout,
			SlowThreshold: s.config.SlowThreshold,
			Attempts:      s.config.Attempts,
		},
		RunID:            runID,
		Concurrency:      s.config.Concurrency,
		Grace:            s.config.Grace,
		ProgressInterval: s.config.ProgressInterval,
		Logger:           s.config.Log,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	result, err := NewCoordinatedRunExecutor(coordinator, s.config.Log).Execute(s.ctx)
	if err != nil {
		// Listing and registration problems are runtime errors, not test
		// failures.
		metrics.RecordErrorDetails("run", err)
		s.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	s.result = result

	if err := s.formatter.FormatResults(result); err != nil {
		s.config.Log.Error("Failed to print results", "error", err)
	}
	s.metrics.ReportResults(result)

	if fileReporter != nil {
		s.config.Log.Info("Run artifacts written", "dir", fileReporter.Dir())
	}
	s.config.Log.Info("Suite run completed", "run_id", result.RunID, "passed", result.Passed())
	return nil
}

// Result returns the most recent settled run result.
func (s *Service) Result() *runner.RunResult {
	return s.result
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping testflow")
	if err := s.scheduler.Stop(); err != nil {
		return err
	}
	s.config.Log.Info("testflow stopped successfully")
	return nil
}

// Stopped returns true if the service is stopped.
func (s *Service) Stopped() bool {
	return s.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *Service) WaitForShutdown(ctx context.Context) error {
	return s.scheduler.WaitForShutdown(ctx)
}
