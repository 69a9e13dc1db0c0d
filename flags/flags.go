package flags

import (
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTFLOW"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Manifest = &cli.StringFlag{
		Name:     "manifest",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("MANIFEST"),
		Usage:    "Path to the suite manifest file (eg. 'suites.yaml')",
	}
	WorkerCommand = &cli.StringSliceFlag{
		Name:     "worker",
		Required: true,
		EnvVars:  prefixEnvVar("WORKER"),
		Usage:    "Worker command to execute per test attempt; repeat the flag for arguments",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   "",
		EnvVars: prefixEnvVar("WORKDIR"),
		Usage:   "Working directory for worker processes",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Default per-test timeout, can be overridden per test in the manifest",
	}
	ListingDeadline = &cli.DurationFlag{
		Name:    "listing-deadline",
		Value:   60 * time.Second,
		EnvVars: prefixEnvVar("LISTING_DEADLINE"),
		Usage:   "How long suite listing may take before the run is aborted",
	}
	SlowThreshold = &cli.DurationFlag{
		Name:    "slow",
		Value:   time.Second,
		EnvVars: prefixEnvVar("SLOW"),
		Usage:   "Wall time above which a passing test is marked slow",
	}
	Grace = &cli.DurationFlag{
		Name:    "grace",
		Value:   5 * time.Second,
		EnvVars: prefixEnvVar("GRACE"),
		Usage:   "How long a timed-out or aborted worker may keep running before it is killed",
	}
	Attempts = &cli.IntFlag{
		Name:    "attempts",
		Value:   1,
		EnvVars: prefixEnvVar("ATTEMPTS"),
		Usage:   "Maximum attempts per test; failures are retried up to this count",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of tests run at once (0 = auto-determine)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory to store run artifacts and per-test logs",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Value:   false,
		EnvVars: prefixEnvVar("VERBOSE"),
		Usage:   "Relay captured worker output and breadcrumbs to the console",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVar("PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates during a run",
	}
)

var requiredFlags = []cli.Flag{
	Manifest,
	WorkerCommand,
}

var optionalFlags = []cli.Flag{
	WorkDir,
	Timeout,
	ListingDeadline,
	SlowThreshold,
	Grace,
	Attempts,
	Concurrency,
	RunInterval,
	LogDir,
	Verbose,
	ProgressInterval,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

// DefaultConcurrency picks a worker pool size when none is configured:
// one worker per CPU, capped to keep process fan-out reasonable.
func DefaultConcurrency() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}
