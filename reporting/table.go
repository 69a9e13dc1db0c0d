package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testflow-dev/testflow/runner"
	"github.com/testflow-dev/testflow/types"
)

// SummaryTable renders the settled run as a table, one row per declared
// test, styled by the run's overall status.
func SummaryTable(result *runner.RunResult) string {
	t := table.NewWriter()
	t.SetTitle("Run %s", result.RunID)
	t.AppendHeader(table.Row{"TEST", "RESULT", "ATTEMPTS", "DURATION", "ERROR"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TEST", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "ATTEMPTS", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "ERROR", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, outcome := range result.Outcomes {
		name := outcome.Descriptor.Path.FullName()
		if outcome.Slow {
			name += " (slow)"
		}
		t.AppendRow(table.Row{
			name,
			strings.ToUpper(string(outcome.Result)),
			outcome.Attempts,
			formatDuration(outcome.Duration),
			firstLine(outcome.FirstError),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d tests", result.Stats.Total),
		overallLabel(result),
		"",
		formatDuration(result.Duration),
		"",
	})

	switch {
	case result.Cancelled || result.Stats.Failed > 0 || result.Stats.TimedOut > 0 || result.Stats.Aborted > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case result.Stats.Passed == 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	return t.Render()
}

// PrintSummary renders the summary table to w.
func PrintSummary(w io.Writer, result *runner.RunResult) error {
	_, err := fmt.Fprintln(w, SummaryTable(result))
	return err
}

func overallLabel(result *runner.RunResult) string {
	if result.Cancelled {
		return "CANCELLED"
	}
	if result.Passed() {
		return "PASS"
	}
	return "FAIL"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// StatsLine renders run statistics as a single line for log output.
func StatsLine(stats types.RunStats) string {
	return fmt.Sprintf("%d total, %d passed, %d failed, %d skipped, %d timed out, %d aborted",
		stats.Total, stats.Passed, stats.Failed, stats.Skipped, stats.TimedOut, stats.Aborted)
}
