// Package reporting renders suite run output for humans: a live per-message
// console stream and a summary table once the run settles.
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testflow-dev/testflow/dispatch"
	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

var _ dispatch.Reporter = (*ConsoleReporter)(nil)

// ConsoleReporter prints run progress as messages arrive. In verbose mode it
// also relays captured worker output, breadcrumbs and debug values.
type ConsoleReporter struct {
	mu            sync.Mutex
	out           io.Writer
	slowThreshold time.Duration
	verbose       bool
	started       map[string]time.Time
}

// NewConsoleReporter creates a console reporter writing to out. A positive
// slowThreshold marks tests whose wall time exceeds it.
func NewConsoleReporter(out io.Writer, slowThreshold time.Duration, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:           out,
		slowThreshold: slowThreshold,
		verbose:       verbose,
		started:       make(map[string]time.Time),
	}
}

func (r *ConsoleReporter) GotMessage(testPath types.TestPath, message wire.Envelope, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := testPath.FullName()
	switch message.Type {
	case wire.TypeStart:
		r.started[testPath.Key()] = timestamp
		if r.verbose {
			fmt.Fprintf(r.out, "%s %s\n", text.FgHiBlack.Sprint("RUN "), name)
		}
	case wire.TypeError:
		where := string(message.In)
		if message.InName != "" {
			where += " " + message.InName
		}
		fmt.Fprintf(r.out, "%s %s: %v (%s)\n", text.FgRed.Sprint("ERR "), name, message.Value, where)
	case wire.TypeTimeout:
		fmt.Fprintf(r.out, "%s %s\n", text.FgRed.Sprint("TIME"), name)
	case wire.TypeRetry:
		fmt.Fprintf(r.out, "%s %s\n", text.FgYellow.Sprint("RTRY"), name)
	case wire.TypeFinish:
		r.printFinish(name, testPath.Key(), message, timestamp)
	case wire.TypeStdout, wire.TypeStderr:
		if r.verbose {
			_, _ = r.out.Write(message.Data)
		}
	case wire.TypeBreadcrumb:
		if r.verbose && !message.SystemGenerated {
			fmt.Fprintf(r.out, "%s %s: %s\n", text.FgHiBlack.Sprint("NOTE"), name, message.Message)
		}
	case wire.TypeDebugInfo:
		if r.verbose {
			fmt.Fprintf(r.out, "%s %s: %s=%v\n", text.FgHiBlack.Sprint("DBG "), name, message.Name, message.Value)
		}
	}
}

func (r *ConsoleReporter) printFinish(name, key string, message wire.Envelope, timestamp time.Time) {
	var elapsed time.Duration
	if startedAt, ok := r.started[key]; ok {
		elapsed = timestamp.Sub(startedAt)
		delete(r.started, key)
	}

	verdict := verdictLabel(message.Result)
	line := fmt.Sprintf("%s %s (%s)", verdict, name, formatDuration(elapsed))
	if r.slowThreshold > 0 && elapsed > r.slowThreshold && message.Result == types.ResultSuccess {
		line += " " + text.FgYellow.Sprint("SLOW")
	}
	fmt.Fprintln(r.out, line)
}

func (r *ConsoleReporter) Done(timestamp time.Time) {}

func verdictLabel(result types.TestResult) string {
	switch result {
	case types.ResultSuccess:
		return text.FgGreen.Sprint("PASS")
	case types.ResultFailure:
		return text.FgRed.Sprint("FAIL")
	case types.ResultSkipped:
		return text.FgYellow.Sprint("SKIP")
	case types.ResultTimeout:
		return text.FgRed.Sprint("TIME")
	case types.ResultAborted:
		return text.FgHiBlack.Sprint("ABRT")
	default:
		return string(result)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
