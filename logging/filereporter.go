// Package logging persists suite run output to disk: a raw ndjson record of
// every delivered message plus a readable per-test log file.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/dispatch"
	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

var _ dispatch.Reporter = (*FileReporter)(nil)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileReporter writes every run artifact under baseDir/testrun-<runID>/:
// messages.ndjson with the full message stream, and one <test>.log per test
// with a readable rendering, ANSI escapes stripped.
type FileReporter struct {
	mu    sync.Mutex
	dir   string
	raw   *os.File
	rawWr *json.Encoder
	files map[string]*os.File
	log   log.Logger
}

type rawRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	File      string        `json:"file"`
	Test      []string      `json:"test"`
	Message   wire.Envelope `json:"message"`
}

// NewFileReporter creates the run directory and opens the raw sink.
func NewFileReporter(baseDir, runID string, logger log.Logger) (*FileReporter, error) {
	if logger == nil {
		logger = log.New()
	}
	dir := filepath.Join(baseDir, "testrun-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	raw, err := os.Create(filepath.Join(dir, "messages.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raw message sink: %w", err)
	}
	return &FileReporter{
		dir:   dir,
		raw:   raw,
		rawWr: json.NewEncoder(raw),
		files: make(map[string]*os.File),
		log:   logger,
	}, nil
}

// Dir returns the run's artifact directory.
func (r *FileReporter) Dir() string {
	return r.dir
}

func (r *FileReporter) GotMessage(testPath types.TestPath, message wire.Envelope, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rawWr.Encode(rawRecord{
		Timestamp: timestamp,
		File:      testPath.File,
		Test:      testPath.Path,
		Message:   message,
	}); err != nil {
		r.log.Error("Failed to append raw message record", "error", err)
	}

	f, err := r.testFile(testPath)
	if err != nil {
		r.log.Error("Failed to open per-test log", "test", testPath.FullName(), "error", err)
		return
	}
	line := renderMessage(message)
	if line == "" {
		return
	}
	if _, err := fmt.Fprintf(f, "%s %s\n", timestamp.Format("15:04:05.000"), line); err != nil {
		r.log.Error("Failed to append per-test log line", "test", testPath.FullName(), "error", err)
	}
}

func (r *FileReporter) Done(timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		_ = f.Close()
	}
	r.files = make(map[string]*os.File)
	_ = r.raw.Close()
}

func (r *FileReporter) testFile(testPath types.TestPath) (*os.File, error) {
	key := testPath.Key()
	if f, ok := r.files[key]; ok {
		return f, nil
	}
	f, err := os.Create(filepath.Join(r.dir, testLogFilename(testPath)))
	if err != nil {
		return nil, err
	}
	r.files[key] = f
	return f, nil
}

// testLogFilename derives a filesystem-safe log name from a test path.
func testLogFilename(testPath types.TestPath) string {
	base := strings.TrimSuffix(filepath.Base(testPath.File), filepath.Ext(testPath.File))
	name := base + "__" + strings.Join(testPath.Path, "__")
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name + ".log"
}

func renderMessage(message wire.Envelope) string {
	switch message.Type {
	case wire.TypeStart:
		if message.Skipped {
			return "start (skipped)"
		}
		return "start"
	case wire.TypeStdout:
		return "stdout: " + strings.TrimRight(stripansi.Strip(string(message.Data)), "\n")
	case wire.TypeStderr:
		return "stderr: " + strings.TrimRight(stripansi.Strip(string(message.Data)), "\n")
	case wire.TypeStartedBeforeHook:
		return "before hook: " + hookName(message.Name)
	case wire.TypeStartedAfterHook:
		return "after hook: " + hookName(message.Name)
	case wire.TypeBreadcrumb:
		return "breadcrumb: " + message.Message
	case wire.TypeDebugInfo:
		return fmt.Sprintf("debug: %s=%v", message.Name, message.Value)
	case wire.TypeError:
		where := string(message.In)
		if message.InName != "" {
			where += " " + message.InName
		}
		return fmt.Sprintf("error in %s: %v", where, message.Value)
	case wire.TypeFinish:
		return fmt.Sprintf("finish: %s (code %d)", message.Result, message.Code)
	case wire.TypeStartedBeforeHooks, wire.TypeStartedTest, wire.TypeStartedAfterHooks,
		wire.TypeFinishedAfterHooks, wire.TypeTimeout, wire.TypeRetry:
		return string(message.Type)
	default:
		return string(message.Type)
	}
}

func hookName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
