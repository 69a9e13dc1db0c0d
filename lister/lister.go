// Package lister obtains the ordered test list from an interface adapter
// under a bounded deadline. Listing failures are run-level: they abort the
// run before any test executes.
package lister

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/types"
)

// Adapter is the interface-adapter contract. Enumerate must invoke declare
// exactly once with the full, ordered list of test descriptors before the
// caller's deadline elapses. Structural problems in the suite source are
// returned as an error, preferably a *RegistrationError carrying a trace.
type Adapter interface {
	Enumerate(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error
}

// ListingTimeoutError means the adapter failed to enumerate tests within the
// listing deadline.
type ListingTimeoutError struct {
	Deadline time.Duration
}

func (e *ListingTimeoutError) Error() string {
	return fmt.Sprintf("listing tests timed out after %v", e.Deadline)
}

// IsListingTimeout reports whether err is or wraps a ListingTimeoutError.
func IsListingTimeout(err error) bool {
	var lte *ListingTimeoutError
	return err != nil && errors.As(err, &lte)
}

// RegistrationError means a suite file could not be registered, typically
// because its source is malformed. Trace carries diagnostic context for the
// human reading the failure.
type RegistrationError struct {
	Message string
	Trace   string
}

func (e *RegistrationError) Error() string {
	if e.Trace == "" {
		return fmt.Sprintf("failed to register suite: %s", e.Message)
	}
	return fmt.Sprintf("failed to register suite: %s\n%s", e.Message, e.Trace)
}

// IsRegistrationError reports whether err is or wraps a RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return err != nil && errors.As(err, &re)
}

// Lister invokes the adapter and enforces the listing deadline.
type Lister struct {
	adapter  Adapter
	deadline time.Duration
	log      log.Logger
}

// New creates a Lister. A zero deadline disables the bound.
func New(adapter Adapter, deadline time.Duration, logger log.Logger) (*Lister, error) {
	if adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Lister{adapter: adapter, deadline: deadline, log: logger}, nil
}

// List runs the adapter's enumeration entrypoint and returns the declared
// descriptors in declaration order. It fails with a ListingTimeoutError if
// the declare callback does not arrive within the deadline, and with a
// RegistrationError if the adapter reports malformed suite source.
func (l *Lister) List(ctx context.Context, cfg types.RunConfig, now time.Time) ([]types.TestDescriptor, error) {
	if l.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.deadline)
		defer cancel()
	}

	l.log.Debug("Listing tests", "suiteFiles", len(cfg.SuiteFiles), "deadline", l.deadline)

	declared := make(chan []types.TestDescriptor, 1)
	errCh := make(chan error, 1)

	go func() {
		err := l.adapter.Enumerate(ctx, func(tests []types.TestDescriptor) {
			// Only the first declaration counts; adapters must call declare once.
			select {
			case declared <- tests:
			default:
				l.log.Warn("Adapter declared tests more than once, ignoring extra declaration")
			}
		}, cfg, now)
		errCh <- err
	}()

	select {
	case tests := <-declared:
		l.log.Debug("Test list received", "tests", len(tests))
		return tests, nil
	case err := <-errCh:
		if err != nil {
			var re *RegistrationError
			if errors.As(err, &re) {
				return nil, re
			}
			return nil, &RegistrationError{Message: err.Error()}
		}
		// The adapter may have declared and returned before we observed the
		// declaration; prefer the declared list over an error.
		select {
		case tests := <-declared:
			l.log.Debug("Test list received", "tests", len(tests))
			return tests, nil
		default:
		}
		return nil, &RegistrationError{Message: "adapter returned without declaring any tests"}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ListingTimeoutError{Deadline: l.deadline}
		}
		return nil, ctx.Err()
	}
}
