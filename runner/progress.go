package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/types"
)

// progressTracker periodically logs how far a run has progressed and which
// tests have been in flight the longest.
type progressTracker struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}

	mu        sync.RWMutex
	total     int
	completed int
	running   map[string]time.Time
}

func newProgressTracker(logger log.Logger, interval time.Duration, total int) *progressTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := &progressTracker{
		logger:  logger,
		ticker:  time.NewTicker(interval),
		stopCh:  make(chan struct{}),
		total:   total,
		running: make(map[string]time.Time),
	}
	go t.reportLoop()
	return t
}

func (t *progressTracker) startTest(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[name] = time.Now()
}

func (t *progressTracker) completeTest(name string, result types.TestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, name)
	t.completed++
	t.logger.Debug("Test settled", "test", name, "result", result, "completed", t.completed, "total", t.total)
}

func (t *progressTracker) stop() {
	t.ticker.Stop()
	close(t.stopCh)
}

func (t *progressTracker) reportLoop() {
	for {
		select {
		case <-t.ticker.C:
			t.report()
		case <-t.stopCh:
			return
		}
	}
}

func (t *progressTracker) report() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var percent float64
	if t.total > 0 {
		percent = float64(t.completed) * 100.0 / float64(t.total)
	}
	t.logger.Info("Progress update",
		"completed", t.completed,
		"total", t.total,
		"percent", fmt.Sprintf("%.1f%%", percent),
		"numRunning", len(t.running),
		"longestRunning", formatRunningTests(t.running, 3),
	)
}

// formatRunningTests renders the longest-running tests, capped at maxShow.
func formatRunningTests(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type entry struct {
		name     string
		duration time.Duration
	}
	now := time.Now()
	entries := make([]entry, 0, len(running))
	for name, started := range running {
		entries = append(entries, entry{name: name, duration: now.Sub(started)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].duration > entries[j].duration
	})

	var parts []string
	for i, e := range entries {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", e.name, e.duration.Truncate(time.Second)))
	}
	if len(entries) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(entries)-maxShow))
	}
	return strings.Join(parts, ", ")
}
