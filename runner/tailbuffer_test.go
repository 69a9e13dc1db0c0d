package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBufferKeepsEverythingUnderLimit(t *testing.T) {
	buf := newTailBuffer(64)
	_, err := buf.Write([]byte("hello "))
	assert.NoError(t, err)
	_, err = buf.Write([]byte("world"))
	assert.NoError(t, err)

	assert.Equal(t, "hello world", buf.String())
	assert.Equal(t, int64(11), buf.TotalBytes())
	assert.False(t, buf.Truncated())
}

func TestTailBufferKeepsOnlyTail(t *testing.T) {
	buf := newTailBuffer(16)
	_, _ = buf.Write([]byte(strings.Repeat("a", 100)))
	_, _ = buf.Write([]byte("the very end"))

	got := buf.String()
	assert.Len(t, got, 16)
	assert.True(t, strings.HasSuffix(got, "the very end"))
	assert.Equal(t, int64(112), buf.TotalBytes())
	assert.True(t, buf.Truncated())
}
