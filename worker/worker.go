// Package worker is the harness embedded by worker binaries. Given the
// resolved hooks and body for one test, Run drives a single attempt and
// emits the lifecycle message skeleton over the coordinator pipe. The
// coordinator owns result derivation and the terminal finish message; the
// harness never emits finish, timeout or retry.
package worker

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/testflow-dev/testflow/wire"
)

// HookFunc is one before- or after-hook. A non-nil error marks the hook as
// failed; the attempt continues per the teardown guarantees.
type HookFunc func(t *T) error

// BodyFunc is the test body.
type BodyFunc func(t *T) error

// NamedHook pairs a hook with its optional name.
type NamedHook struct {
	Name string
	Fn   HookFunc
}

// Registration is the resolved execution plan for one test: before-hooks
// outer-to-inner, the body, after-hooks inner-to-outer.
type Registration struct {
	BeforeHooks []NamedHook
	Body        BodyFunc
	AfterHooks  []NamedHook
}

// T is the handle passed to hooks and test bodies for emitting diagnostics.
type T struct {
	enc *wire.Encoder
}

// Breadcrumb records a progress note with the caller's location as trace.
func (t *T) Breadcrumb(message string) {
	_ = t.enc.Emit(wire.Breadcrumb(message, callerTrace(2), false))
}

// DebugInfo attaches a named value to the attempt's message log.
func (t *T) DebugInfo(name string, value any) {
	_ = t.enc.Emit(wire.DebugInfo(name, value))
}

// Run executes one attempt and writes its message stream to w, which is
// normally the fd-3 pipe inherited from the coordinator. After-hooks always
// run once the before-hook phase has started, even when a before-hook, the
// body, or a panic failed the attempt. Errors never propagate out of Run;
// they become error messages in the stream. The returned error only reports
// a broken pipe.
func Run(w io.Writer, reg Registration) error {
	enc := wire.NewEncoder(w)
	t := &T{enc: enc}

	if err := enc.Emit(wire.Start(false)); err != nil {
		return err
	}
	if err := enc.Emit(wire.StartedBeforeHooks()); err != nil {
		return err
	}

	beforeOK := true
	for _, hook := range reg.BeforeHooks {
		_ = enc.Emit(wire.StartedBeforeHook(hook.Name))
		if detail := runStage(hook.Fn, t); detail != nil {
			_ = enc.Emit(wire.Error(wire.InBeforeHook, hook.Name, detail))
			beforeOK = false
			break
		}
	}

	if beforeOK && reg.Body != nil {
		_ = enc.Emit(wire.StartedTest())
		if detail := runBody(reg.Body, t, enc); detail != nil {
			_ = enc.Emit(detail.envelope())
		}
	}

	// Teardown-on-failure: the after-hook phase runs regardless of what
	// happened above. A failing after-hook does not stop later ones.
	_ = enc.Emit(wire.StartedAfterHooks())
	for _, hook := range reg.AfterHooks {
		_ = enc.Emit(wire.StartedAfterHook(hook.Name))
		if detail := runStage(hook.Fn, t); detail != nil {
			_ = enc.Emit(wire.Error(wire.InAfterHook, hook.Name, detail))
		}
	}
	return enc.Emit(wire.FinishedAfterHooks())
}

// runStage invokes a hook, converting a panic into an error detail.
func runStage(fn HookFunc, t *T) (detail any) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			detail = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	if err := fn(t); err != nil {
		return err.Error()
	}
	return nil
}

// bodyFailure distinguishes a returned error (in:test) from a panic that
// escaped the body (in:uncaught).
type bodyFailure struct {
	uncaught bool
	detail   any
}

func (f *bodyFailure) envelope() wire.Envelope {
	if f.uncaught {
		return wire.Error(wire.InUncaught, "", f.detail)
	}
	return wire.Error(wire.InTest, "", f.detail)
}

func runBody(fn BodyFunc, t *T, enc *wire.Encoder) (failure *bodyFailure) {
	defer func() {
		if r := recover(); r != nil {
			failure = &bodyFailure{uncaught: true, detail: fmt.Sprintf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	if err := fn(t); err != nil {
		return &bodyFailure{detail: err.Error()}
	}
	return nil
}

func callerTrace(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok {
		return fmt.Sprintf("at %s:%d", file, line)
	}
	return ""
}
