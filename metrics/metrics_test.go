package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/testflow-dev/testflow/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("spawn", errors.New("no such file"))
}

func TestRecordTest(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordTest panic'd")
		}
	}()

	RecordTest("run-1", types.ResultSuccess)
	RecordTest("run-1", types.ResultTimeout)
	RecordTest("run-1", types.TestResult("bogus")) // logged and dropped
}

func TestRecordRunAndRetries(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordRun panic'd")
		}
	}()

	RecordRetries("run-1", 1) // no-op
	RecordRetries("run-1", 3)
	RecordRun("run-1", "pass", 10, 5*time.Second)
}
