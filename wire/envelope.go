// Package wire defines the message protocol spoken between the coordinator
// and its worker processes. Every lifecycle event of an attempt is a single
// discriminated Envelope; the set of message types is closed.
package wire

import (
	"fmt"

	"github.com/testflow-dev/testflow/types"
)

// MessageType discriminates the envelope variants.
type MessageType string

const (
	TypeStart              MessageType = "start"
	TypeStdout             MessageType = "stdout"
	TypeStderr             MessageType = "stderr"
	TypeStartedBeforeHooks MessageType = "startedBeforeHooks"
	TypeStartedBeforeHook  MessageType = "startedBeforeHook"
	TypeStartedTest        MessageType = "startedTest"
	TypeBreadcrumb         MessageType = "breadcrumb"
	TypeDebugInfo          MessageType = "debugInfo"
	TypeError              MessageType = "error"
	TypeStartedAfterHooks  MessageType = "startedAfterHooks"
	TypeStartedAfterHook   MessageType = "startedAfterHook"
	TypeFinishedAfterHooks MessageType = "finishedAfterHooks"
	TypeTimeout            MessageType = "timeout"
	TypeRetry              MessageType = "retry"
	TypeFinish             MessageType = "finish"
)

// ErrorLocation says which phase of an attempt produced an error message.
type ErrorLocation string

const (
	InBeforeHook ErrorLocation = "beforeHook"
	InAfterHook  ErrorLocation = "afterHook"
	InTest       ErrorLocation = "test"
	InUncaught   ErrorLocation = "uncaught"
)

// Envelope is the wire record for one message. Type is always set; the other
// fields are populated per type:
//
//	start                              Skipped
//	stdout, stderr                     Data
//	startedBeforeHook, startedAfterHook Name (empty for unnamed hooks)
//	breadcrumb                         Message, Trace, SystemGenerated
//	debugInfo                          Name, Value
//	error                              In, InName, Value
//	finish                             Result, Code
//
// startedBeforeHooks, startedTest, startedAfterHooks, finishedAfterHooks,
// timeout and retry carry no payload.
type Envelope struct {
	Type            MessageType      `json:"type"`
	Skipped         bool             `json:"skipped,omitempty"`
	Data            []byte           `json:"data,omitempty"`
	Name            string           `json:"name,omitempty"`
	Message         string           `json:"message,omitempty"`
	Trace           string           `json:"trace,omitempty"`
	SystemGenerated bool             `json:"systemGenerated,omitempty"`
	In              ErrorLocation    `json:"in,omitempty"`
	InName          string           `json:"inName,omitempty"`
	Value           any              `json:"value,omitempty"`
	Result          types.TestResult `json:"result,omitempty"`
	Code            int              `json:"code,omitempty"`
}

// Start opens an attempt. Skipped tests set the flag and emit nothing else
// before finish.
func Start(skipped bool) Envelope {
	return Envelope{Type: TypeStart, Skipped: skipped}
}

// Stdout carries bytes the worker wrote to its standard output.
func Stdout(data []byte) Envelope {
	return Envelope{Type: TypeStdout, Data: data}
}

// Stderr carries bytes the worker wrote to its standard error.
func Stderr(data []byte) Envelope {
	return Envelope{Type: TypeStderr, Data: data}
}

// StartedBeforeHooks marks the start of the before-hook phase.
func StartedBeforeHooks() Envelope { return Envelope{Type: TypeStartedBeforeHooks} }

// StartedBeforeHook marks the start of one before-hook.
func StartedBeforeHook(name string) Envelope {
	return Envelope{Type: TypeStartedBeforeHook, Name: name}
}

// StartedTest marks the start of the test body.
func StartedTest() Envelope { return Envelope{Type: TypeStartedTest} }

// Breadcrumb is a lightweight diagnostic note marking progress.
func Breadcrumb(message, trace string, systemGenerated bool) Envelope {
	return Envelope{Type: TypeBreadcrumb, Message: message, Trace: trace, SystemGenerated: systemGenerated}
}

// DebugInfo attaches a named arbitrary value to the attempt.
func DebugInfo(name string, value any) Envelope {
	return Envelope{Type: TypeDebugInfo, Name: name, Value: value}
}

// Error reports a contained failure in the given phase. inName is the hook
// name for named hooks, empty otherwise.
func Error(in ErrorLocation, inName string, value any) Envelope {
	return Envelope{Type: TypeError, In: in, InName: inName, Value: value}
}

// StartedAfterHooks marks the start of the after-hook phase.
func StartedAfterHooks() Envelope { return Envelope{Type: TypeStartedAfterHooks} }

// StartedAfterHook marks the start of one after-hook.
func StartedAfterHook(name string) Envelope {
	return Envelope{Type: TypeStartedAfterHook, Name: name}
}

// FinishedAfterHooks marks the completion of the after-hook phase.
func FinishedAfterHooks() Envelope { return Envelope{Type: TypeFinishedAfterHooks} }

// Timeout signals that the attempt deadline fired. The terminal finish
// follows once the worker's remaining messages have been forwarded.
func Timeout() Envelope { return Envelope{Type: TypeTimeout} }

// Retry separates a failed attempt from the next one.
func Retry() Envelope { return Envelope{Type: TypeRetry} }

// Finish closes the attempt sequence. It is always the last message ever
// emitted for a test.
func Finish(result types.TestResult, code int) Envelope {
	return Envelope{Type: TypeFinish, Result: result, Code: code}
}

// Validate checks the envelope against the closed type set and its per-type
// required fields.
func (e Envelope) Validate() error {
	switch e.Type {
	case TypeStart, TypeStdout, TypeStderr, TypeStartedBeforeHooks, TypeStartedBeforeHook,
		TypeStartedTest, TypeBreadcrumb, TypeDebugInfo, TypeStartedAfterHooks,
		TypeStartedAfterHook, TypeFinishedAfterHooks, TypeTimeout, TypeRetry:
	case TypeError:
		switch e.In {
		case InBeforeHook, InAfterHook, InTest, InUncaught:
		default:
			return fmt.Errorf("error message has invalid location %q", e.In)
		}
	case TypeFinish:
		if !e.Result.Valid() {
			return fmt.Errorf("finish message has invalid result %q", e.Result)
		}
	default:
		return fmt.Errorf("unknown message type %q", e.Type)
	}
	return nil
}

// Terminal reports whether this envelope closes a test's message stream.
func (e Envelope) Terminal() bool {
	return e.Type == TypeFinish
}
