package testflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// RunScheduler is responsible for scheduling suite runs.
type RunScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// IntervalScheduler implements the RunScheduler interface. In run-once mode
// the callback executes once synchronously; otherwise it executes immediately
// and then on every interval tick until stopped.
type IntervalScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewIntervalScheduler creates a new IntervalScheduler.
func NewIntervalScheduler(interval time.Duration, runOnce bool, logger log.Logger) *IntervalScheduler {
	return &IntervalScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when a run is due.
func (s *IntervalScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start starts the scheduler.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.callback()
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)

	// Run immediately on startup
	err := s.callback()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Debug("Starting periodic run goroutine", "interval", s.interval)

		for {
			select {
			case <-time.After(s.interval):
				if !s.running.Load() {
					s.logger.Debug("Service stopped, exiting periodic runner")
					return
				}

				s.logger.Info("Running periodic suite run")
				if err := s.callback(); err != nil {
					s.logger.Error("Error running periodic suite run", "error", err)
				}

			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop stops the scheduler.
func (s *IntervalScheduler) Stop() error {
	if !s.running.Load() {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new runs
	s.running.Store(false)
	s.logger.Debug("Sending done signal to goroutines")
	close(s.done)

	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *IntervalScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *IntervalScheduler) WaitForShutdown(ctx context.Context) error {
	s.logger.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
