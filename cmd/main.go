package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testflow "github.com/testflow-dev/testflow"
	"github.com/testflow-dev/testflow/exitcodes"
	"github.com/testflow-dev/testflow/flags"
	"github.com/testflow-dev/testflow/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testflow"
	app.Usage = "Test Suite Orchestration Service"
	app.Description = "testflow runs test suites in isolated worker processes"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if testflow.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if testflow.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start healthz and metrics servers
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true))
	log.SetDefault(logger)

	cfg, err := testflow.NewConfig(cliCtx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return testflow.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	ctx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	svc, err := testflow.New(ctx, cfg, Version, cancel)
	if err != nil {
		return testflow.NewRuntimeError(fmt.Errorf("failed to create service: %w", err))
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	if cfg.RunOnce {
		return nil
	}

	// Continuous mode: block until interrupted, then drain.
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		return err
	}
	return svc.WaitForShutdown(stopCtx)
}
