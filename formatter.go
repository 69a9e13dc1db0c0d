package testflow

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/reporting"
	"github.com/testflow-dev/testflow/runner"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	out    io.Writer
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter. A nil out
// writes to stdout.
func NewConsoleResultFormatter(out io.Writer, logger log.Logger) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		out:    out,
		logger: logger,
	}
}

// FormatResults renders the summary table and a one-line stats recap.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Info("Printing results...")
	if err := reporting.PrintSummary(f.out, result); err != nil {
		return err
	}
	f.logger.Info("Run summary", "run_id", result.RunID, "stats", reporting.StatsLine(result.Stats))
	return nil
}
