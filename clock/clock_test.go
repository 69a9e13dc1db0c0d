package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockSuccessiveReadings(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start, time.Second)

	assert.Equal(t, start, clk.Now())
	assert.Equal(t, start.Add(time.Second), clk.Now())
	assert.Equal(t, start.Add(2*time.Second), clk.Now())
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start, 0)

	assert.Equal(t, start, clk.Now())
	clk.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), clk.Now())
}

func TestSystemClockMonotonicEnough(t *testing.T) {
	clk := System()
	a := clk.Now()
	b := clk.Now()
	assert.False(t, b.Before(a))
}
