package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
	"github.com/testflow-dev/testflow/worker"
)

const outputChunkBytes = 32 * 1024

// SpawnRequest identifies the attempt a worker process must execute.
type SpawnRequest struct {
	Descriptor types.TestDescriptor
	Attempt    int
}

// WorkerHandle is one live worker process. Messages carries the worker's
// lifecycle messages merged with its captured stdout/stderr, serialized in
// read order; the channel closes once every pipe has drained. Wait must only
// be called after Messages has closed.
type WorkerHandle interface {
	Messages() <-chan wire.Envelope
	Wait() error
	Kill() error
}

// ProcessSpawner launches worker processes. It is pluggable so tests can
// substitute scripted in-process workers.
type ProcessSpawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (WorkerHandle, error)
}

var _ ProcessSpawner = (*ExecSpawner)(nil)

// ExecSpawner launches a configured worker command per attempt. The request
// travels in TESTFLOW_* environment variables and the message pipe is
// inherited as file descriptor 3; stdout and stderr are captured and
// forwarded as stdout/stderr messages.
type ExecSpawner struct {
	command []string
	dir     string
	env     []string
	log     log.Logger
}

// NewExecSpawner creates an ExecSpawner running the given command. extraEnv
// entries are appended to the inherited environment.
func NewExecSpawner(command []string, dir string, extraEnv []string, logger log.Logger) (*ExecSpawner, error) {
	if len(command) == 0 {
		return nil, errors.New("worker command is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &ExecSpawner{command: command, dir: dir, env: extraEnv, log: logger}, nil
}

// Spawn starts one worker process for the requested attempt.
func (s *ExecSpawner) Spawn(ctx context.Context, req SpawnRequest) (WorkerHandle, error) {
	reqEnv, err := worker.Request{
		File:    req.Descriptor.Path.File,
		Path:    req.Descriptor.Path.Path,
		Attempt: req.Attempt,
	}.Environ()
	if err != nil {
		return nil, err
	}

	pipeRead, pipeWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create message pipe: %w", err)
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.dir
	cmd.Env = append(append(os.Environ(), s.env...), reqEnv...)
	cmd.ExtraFiles = []*os.File{pipeWrite}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closePair(pipeRead, pipeWrite)
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closePair(pipeRead, pipeWrite)
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		closePair(pipeRead, pipeWrite)
		return nil, fmt.Errorf("failed to start worker %q: %w", s.command[0], err)
	}
	// The child holds its own copy of the write end.
	_ = pipeWrite.Close()

	s.log.Debug("Spawned worker", "test", req.Descriptor.Path.FullName(), "attempt", req.Attempt, "pid", cmd.Process.Pid)

	h := &execHandle{
		cmd:      cmd,
		messages: make(chan wire.Envelope, 64),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go h.pumpMessages(&wg, pipeRead, s.log)
	go h.pumpOutput(&wg, stdout, false)
	go h.pumpOutput(&wg, stderr, true)
	go func() {
		wg.Wait()
		_ = pipeRead.Close()
		close(h.messages)
	}()

	return h, nil
}

type execHandle struct {
	cmd      *exec.Cmd
	messages chan wire.Envelope

	waitOnce sync.Once
	waitErr  error
}

func (h *execHandle) Messages() <-chan wire.Envelope { return h.messages }

func (h *execHandle) Wait() error {
	h.waitOnce.Do(func() {
		h.waitErr = h.cmd.Wait()
	})
	return h.waitErr
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// pumpMessages decodes lifecycle messages from the fd-3 pipe. A protocol
// violation is contained as an uncaught error message rather than unwound.
func (h *execHandle) pumpMessages(wg *sync.WaitGroup, r io.Reader, logger log.Logger) {
	defer wg.Done()
	dec := wire.NewDecoder(r)
	for {
		env, err := dec.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Warn("Worker message stream broke", "error", err)
			h.messages <- wire.Error(wire.InUncaught, "", fmt.Sprintf("worker message stream broke: %v", err))
			return
		}
		h.messages <- env
	}
}

// pumpOutput forwards captured process output as stdout/stderr messages.
func (h *execHandle) pumpOutput(wg *sync.WaitGroup, r io.Reader, isStderr bool) {
	defer wg.Done()
	buf := make([]byte, outputChunkBytes)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if isStderr {
				h.messages <- wire.Stderr(data)
			} else {
				h.messages <- wire.Stdout(data)
			}
		}
		if err != nil {
			return
		}
	}
}

func closePair(a, b *os.File) {
	_ = a.Close()
	_ = b.Close()
}
