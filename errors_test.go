package testflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeErrorWrapping(t *testing.T) {
	base := errors.New("manifest not found")
	err := NewRuntimeError(base)

	assert.True(t, IsRuntimeError(err))
	assert.False(t, IsTestFailureError(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "runtime error")

	wrapped := fmt.Errorf("starting service: %w", err)
	assert.True(t, IsRuntimeError(wrapped))
}

func TestTestFailureError(t *testing.T) {
	err := NewTestFailureError("2 of 5 tests failed")

	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "2 of 5 tests failed")

	wrapped := fmt.Errorf("run: %w", err)
	assert.True(t, IsTestFailureError(wrapped))
}

func TestErrorPredicatesRejectNilAndPlainErrors(t *testing.T) {
	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
	assert.False(t, IsRuntimeError(errors.New("plain")))
	assert.False(t, IsTestFailureError(errors.New("plain")))
}
