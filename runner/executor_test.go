package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testflow-dev/testflow/types"
	"github.com/testflow-dev/testflow/wire"
)

type spawnerFunc func(ctx context.Context, req SpawnRequest) (WorkerHandle, error)

func (f spawnerFunc) Spawn(ctx context.Context, req SpawnRequest) (WorkerHandle, error) {
	return f(ctx, req)
}

// fakeHandle is a scripted in-process worker. A holding handle keeps the
// message channel open after the scripted messages until Kill, which appends
// the late messages and closes it. If blockWait is set the process lingers
// after closing its pipe: Wait blocks until Kill.
type fakeHandle struct {
	messages chan wire.Envelope
	waitErr  error

	blockWait bool
	late      []wire.Envelope
	closeOnce sync.Once
	killOnce  sync.Once
	killed    chan struct{}
}

func newFakeHandle(waitErr error, script ...wire.Envelope) *fakeHandle {
	h := &fakeHandle{
		messages: make(chan wire.Envelope, len(script)+8),
		waitErr:  waitErr,
		killed:   make(chan struct{}),
	}
	for _, env := range script {
		h.messages <- env
	}
	h.closeOnce.Do(func() { close(h.messages) })
	return h
}

func newHoldingHandle(waitErr error, late []wire.Envelope, script ...wire.Envelope) *fakeHandle {
	h := &fakeHandle{
		messages: make(chan wire.Envelope, len(script)+len(late)+8),
		waitErr:  waitErr,
		late:     late,
		killed:   make(chan struct{}),
	}
	for _, env := range script {
		h.messages <- env
	}
	return h
}

func (h *fakeHandle) Messages() <-chan wire.Envelope { return h.messages }

func (h *fakeHandle) Wait() error {
	if h.blockWait {
		<-h.killed
	}
	return h.waitErr
}

func (h *fakeHandle) Kill() error {
	h.killOnce.Do(func() { close(h.killed) })
	h.closeOnce.Do(func() {
		for _, env := range h.late {
			h.messages <- env
		}
		close(h.messages)
	})
	return nil
}

func fixedSpawner(handle WorkerHandle) ProcessSpawner {
	return spawnerFunc(func(ctx context.Context, req SpawnRequest) (WorkerHandle, error) {
		return handle, nil
	})
}

func testDescriptor(name string) types.TestDescriptor {
	return types.TestDescriptor{
		Path: types.NewTestPath("/suites/app.test.js", "app", name),
	}
}

type sinkRecorder struct {
	mu   sync.Mutex
	envs []wire.Envelope
}

func (s *sinkRecorder) sink(env wire.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *sinkRecorder) typeSequence() []wire.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.MessageType, len(s.envs))
	for i, env := range s.envs {
		out[i] = env.Type
	}
	return out
}

func (s *sinkRecorder) recorded() []wire.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Envelope(nil), s.envs...)
}

func newTestExecutor(t *testing.T, spawner ProcessSpawner, timeout, grace time.Duration) *Executor {
	t.Helper()
	exec, err := NewExecutor(spawner, timeout, grace, log.New())
	require.NoError(t, err)
	return exec
}

func TestExecutorForwardsWorkerSkeleton(t *testing.T) {
	handle := newFakeHandle(nil,
		wire.Start(false),
		wire.StartedBeforeHooks(),
		wire.StartedBeforeHook("setup"),
		wire.StartedTest(),
		wire.StartedAfterHooks(),
		wire.FinishedAfterHooks(),
	)
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("passes"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultSuccess, report.Result)
	assert.False(t, report.FinishEmitted)
	assert.Empty(t, report.FirstError)
	assert.Equal(t, []wire.MessageType{
		wire.TypeStart,
		wire.TypeStartedBeforeHooks,
		wire.TypeStartedBeforeHook,
		wire.TypeStartedTest,
		wire.TypeStartedAfterHooks,
		wire.TypeFinishedAfterHooks,
	}, rec.typeSequence())
}

func TestExecutorSkippedShortCircuits(t *testing.T) {
	spawner := spawnerFunc(func(ctx context.Context, req SpawnRequest) (WorkerHandle, error) {
		t.Fatal("skipped test must not spawn a worker")
		return nil, nil
	})
	exec := newTestExecutor(t, spawner, time.Second, time.Second)

	desc := testDescriptor("skipped")
	desc.Skipped = true

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), desc, 0, nil, rec.sink)

	assert.Equal(t, types.ResultSkipped, report.Result)
	assert.True(t, report.FinishEmitted)

	envs := rec.recorded()
	require.Len(t, envs, 2)
	assert.Equal(t, wire.TypeStart, envs[0].Type)
	assert.True(t, envs[0].Skipped)
	assert.Equal(t, wire.TypeFinish, envs[1].Type)
	assert.Equal(t, types.ResultSkipped, envs[1].Result)
	assert.Equal(t, 0, envs[1].Code)
}

func TestExecutorSpawnFailureBecomesFailedAttempt(t *testing.T) {
	spawner := spawnerFunc(func(ctx context.Context, req SpawnRequest) (WorkerHandle, error) {
		return nil, errors.New("no such worker binary")
	})
	exec := newTestExecutor(t, spawner, time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("unspawnable"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultFailure, report.Result)
	assert.False(t, report.FinishEmitted)
	assert.Contains(t, report.FirstError, "no such worker binary")
	assert.Equal(t, []wire.MessageType{wire.TypeStart, wire.TypeError}, rec.typeSequence())
}

func TestExecutorDropsReservedMessageTypes(t *testing.T) {
	handle := newFakeHandle(nil,
		wire.Start(false),
		wire.Finish(types.ResultSuccess, 0),
		wire.Timeout(),
		wire.Retry(),
		wire.StartedTest(),
	)
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("chatty"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultSuccess, report.Result)
	assert.Equal(t, []wire.MessageType{wire.TypeStart, wire.TypeStartedTest}, rec.typeSequence())
}

func TestExecutorSuppressesStartOnRetriedAttempt(t *testing.T) {
	handle := newFakeHandle(nil,
		wire.Start(false),
		wire.StartedBeforeHooks(),
		wire.StartedTest(),
	)
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	exec.RunAttempt(context.Background(), testDescriptor("retried"), 1, nil, rec.sink)

	assert.Equal(t, []wire.MessageType{
		wire.TypeStartedBeforeHooks,
		wire.TypeStartedTest,
	}, rec.typeSequence())
}

func TestExecutorRecordsFirstErrorAndOutputTail(t *testing.T) {
	handle := newFakeHandle(nil,
		wire.Start(false),
		wire.Stdout([]byte("hello ")),
		wire.Error(wire.InTest, "", "expected 2, got 3"),
		wire.Error(wire.InAfterHook, "cleanup", "second failure"),
		wire.Stderr([]byte("world")),
	)
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("fails"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultFailure, report.Result)
	assert.Equal(t, "expected 2, got 3", report.FirstError)
	assert.Equal(t, "hello world", report.OutputTail)
}

func TestExecutorTimeoutKeepsForwardingThenTimesOut(t *testing.T) {
	late := []wire.Envelope{wire.Stdout([]byte("still going"))}
	handle := newHoldingHandle(nil, late, wire.Start(false), wire.StartedTest())
	exec := newTestExecutor(t, fixedSpawner(handle), 30*time.Millisecond, 20*time.Millisecond)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("hangs"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultTimeout, report.Result)
	assert.False(t, report.FinishEmitted)
	assert.Equal(t, []wire.MessageType{
		wire.TypeStart,
		wire.TypeStartedTest,
		wire.TypeTimeout,
		wire.TypeStdout,
	}, rec.typeSequence())
}

func TestExecutorCancelForcesSingleAbortedFinish(t *testing.T) {
	late := []wire.Envelope{wire.Breadcrumb("late note", "", false)}
	handle := newHoldingHandle(nil, late, wire.Start(false), wire.StartedTest())
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	cancelled := make(chan struct{})
	close(cancelled)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("aborted"), 0, cancelled, rec.sink)

	assert.Equal(t, types.ResultAborted, report.Result)
	assert.True(t, report.FinishEmitted)

	seq := rec.typeSequence()
	require.NotEmpty(t, seq)
	assert.Equal(t, wire.TypeFinish, seq[len(seq)-1])
	finishes := 0
	for _, typ := range seq {
		if typ == wire.TypeFinish {
			finishes++
		}
	}
	assert.Equal(t, 1, finishes)
	assert.NotContains(t, seq, wire.TypeBreadcrumb)

	envs := rec.recorded()
	last := envs[len(envs)-1]
	assert.Equal(t, types.ResultAborted, last.Result)
	assert.Equal(t, 2, last.Code)
}

func TestExecutorContainsWorkerCrash(t *testing.T) {
	handle := newFakeHandle(errors.New("signal: killed"),
		wire.Start(false),
		wire.StartedBeforeHooks(),
	)
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("crashes"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultFailure, report.Result)
	assert.Contains(t, report.FirstError, "worker exited abnormally")

	envs := rec.recorded()
	last := envs[len(envs)-1]
	assert.Equal(t, wire.TypeError, last.Type)
	assert.Equal(t, wire.InUncaught, last.In)
}

func TestExecutorCancelInterruptsWaitOnLingeringWorker(t *testing.T) {
	handle := newFakeHandle(nil, wire.Start(false), wire.StartedTest())
	handle.blockWait = true
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	cancelled := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cancelled)
	}()

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("lingers"), 0, cancelled, rec.sink)

	assert.Equal(t, types.ResultAborted, report.Result)
	assert.True(t, report.FinishEmitted)

	seq := rec.typeSequence()
	require.NotEmpty(t, seq)
	last := rec.recorded()[len(seq)-1]
	assert.Equal(t, wire.TypeFinish, last.Type)
	assert.Equal(t, types.ResultAborted, last.Result)
}

func TestExecutorOpensStreamWhenWorkerDiesBeforeReporting(t *testing.T) {
	handle := newFakeHandle(errors.New("exit status 127"))
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("silent crash"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultFailure, report.Result)
	assert.Contains(t, report.FirstError, "worker exited abnormally")
	assert.Equal(t, []wire.MessageType{wire.TypeStart, wire.TypeError}, rec.typeSequence())
}

func TestExecutorOpensStreamWhenWorkerHangsBeforeReporting(t *testing.T) {
	handle := newHoldingHandle(nil, nil)
	exec := newTestExecutor(t, fixedSpawner(handle), 30*time.Millisecond, 10*time.Millisecond)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("silent hang"), 0, nil, rec.sink)

	assert.Equal(t, types.ResultTimeout, report.Result)
	assert.Equal(t, []wire.MessageType{wire.TypeStart, wire.TypeTimeout}, rec.typeSequence())
}

func TestExecutorNoStartOnRetriedAttemptCrash(t *testing.T) {
	handle := newFakeHandle(errors.New("signal: killed"))
	exec := newTestExecutor(t, fixedSpawner(handle), time.Second, time.Second)

	rec := &sinkRecorder{}
	report := exec.RunAttempt(context.Background(), testDescriptor("silent crash"), 1, nil, rec.sink)

	assert.Equal(t, types.ResultFailure, report.Result)
	assert.Equal(t, []wire.MessageType{wire.TypeError}, rec.typeSequence())
}

func TestNewExecutorRequiresSpawner(t *testing.T) {
	_, err := NewExecutor(nil, time.Second, time.Second, log.New())
	require.Error(t, err)
}
