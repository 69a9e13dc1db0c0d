package runner

import (
	"sync"
)

const defaultOutputTailBytes = 64 * 1024 // tail kept in memory per test

// tailBuffer keeps only the last N bytes written to it so we can attach a
// representative snippet of captured output to the TestOutcome without
// retaining the entire log in memory.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &tailBuffer{
		maxBytes: maxBytes,
		contents: make([]byte, 0, maxBytes),
	}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
		b.overflow = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

func (b *tailBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
