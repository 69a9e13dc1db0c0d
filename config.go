package testflow

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/testflow-dev/testflow/flags"
)

// Config holds the application configuration
type Config struct {
	ManifestPath     string        // Absolute path to the suite manifest
	WorkerCommand    []string      // Worker command plus arguments, executed per attempt
	WorkDir          string        // Working directory for worker processes
	Timeout          time.Duration // Default per-test timeout, overridable per test
	ListingDeadline  time.Duration // Bound on suite listing
	SlowThreshold    time.Duration // Wall time above which a passing test is marked slow
	Grace            time.Duration // Kill delay for timed-out or aborted workers
	Attempts         int           // Maximum attempts per test
	Concurrency      int           // Number of tests run at once
	RunInterval      time.Duration // Interval between suite runs
	RunOnce          bool          // Indicates if the service should exit after one run
	LogDir           string        // Directory to store run artifacts
	Verbose          bool          // Relay worker output to the console
	ProgressInterval time.Duration // Interval between progress updates
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	manifest := ctx.String(flags.Manifest.Name)
	if manifest == "" {
		return nil, errors.New("suite manifest is required")
	}
	absManifest, err := filepath.Abs(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifest, err)
	}

	workerCommand := ctx.StringSlice(flags.WorkerCommand.Name)
	if len(workerCommand) == 0 {
		return nil, errors.New("worker command is required")
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir != "" {
		workDir, err = filepath.Abs(workDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
		}
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	attempts := ctx.Int(flags.Attempts.Name)
	if attempts < 1 {
		return nil, fmt.Errorf("attempt count must be at least 1, got %d", attempts)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative, got %d", concurrency)
	}
	if concurrency == 0 {
		concurrency = flags.DefaultConcurrency()
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		ManifestPath:     absManifest,
		WorkerCommand:    workerCommand,
		WorkDir:          workDir,
		Timeout:          ctx.Duration(flags.Timeout.Name),
		ListingDeadline:  ctx.Duration(flags.ListingDeadline.Name),
		SlowThreshold:    ctx.Duration(flags.SlowThreshold.Name),
		Grace:            ctx.Duration(flags.Grace.Name),
		Attempts:         attempts,
		Concurrency:      concurrency,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		LogDir:           logDir,
		Verbose:          ctx.Bool(flags.Verbose.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Log:              logger,
	}, nil
}
