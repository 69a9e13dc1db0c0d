package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/testflow-dev/testflow/types"
)

const (
	MetricsNamespace = "testflow"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of settled tests",
	}, []string{
		"run_id",
		"result",
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "retries_total",
		Help:      "Count of retried attempts",
	}, []string{
		"run_id",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of suite runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest counts one settled test.
func RecordTest(runID string, result types.TestResult) {
	if !result.Valid() {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"result", result)
	}
	testsTotal.WithLabelValues(runID, string(result)).Inc()
}

// RecordRetries counts the extra attempts a test consumed beyond its first.
func RecordRetries(runID string, attempts int) {
	if attempts <= 1 {
		return
	}
	retriesTotal.WithLabelValues(runID).Add(float64(attempts - 1))
}

// RecordRun records the aggregate of one settled suite run.
func RecordRun(runID string, result string, total int, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestTotal.WithLabelValues(runID).Add(float64(total))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
