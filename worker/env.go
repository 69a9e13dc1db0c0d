package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// The coordinator passes the attempt request to the worker through the
// environment, and the message pipe as inherited file descriptor 3.
const (
	MessageFD = 3

	EnvFile    = "TESTFLOW_FILE"
	EnvPath    = "TESTFLOW_PATH" // JSON array of name segments
	EnvAttempt = "TESTFLOW_ATTEMPT"
)

// Request identifies the test and attempt a worker process must execute.
type Request struct {
	File    string
	Path    []string
	Attempt int
}

// Environ renders the request as environment variable assignments.
func (r Request) Environ() ([]string, error) {
	segments, err := json.Marshal(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to encode test path: %w", err)
	}
	return []string{
		EnvFile + "=" + r.File,
		EnvPath + "=" + string(segments),
		EnvAttempt + "=" + strconv.Itoa(r.Attempt),
	}, nil
}

// RequestFromEnviron reads the request the coordinator placed in the
// worker's environment.
func RequestFromEnviron() (Request, error) {
	file := os.Getenv(EnvFile)
	if file == "" {
		return Request{}, fmt.Errorf("%s is not set; not running under a testflow coordinator", EnvFile)
	}

	var segments []string
	if raw := os.Getenv(EnvPath); raw != "" {
		if err := json.Unmarshal([]byte(raw), &segments); err != nil {
			return Request{}, fmt.Errorf("failed to decode %s: %w", EnvPath, err)
		}
	}

	attempt := 0
	if raw := os.Getenv(EnvAttempt); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Request{}, fmt.Errorf("failed to decode %s: %w", EnvAttempt, err)
		}
		attempt = n
	}

	return Request{File: file, Path: segments, Attempt: attempt}, nil
}

// Pipe returns the inherited message pipe. Only valid inside a process
// spawned by the coordinator's exec spawner.
func Pipe() *os.File {
	return os.NewFile(MessageFD, "testflow-messages")
}
