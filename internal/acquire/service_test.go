package acquire_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DINO060/mediasink/internal/acquire"
	"github.com/DINO060/mediasink/internal/event"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type stubExecutor struct {
	executions int32
	delay      time.Duration
	err        error
}

func (executor *stubExecutor) Execute(_ context.Context, _ *acquire.Task) (*acquire.Result, error) {
	atomic.AddInt32(&executor.executions, 1)
	if executor.delay > 0 {
		time.Sleep(executor.delay)
	}
	if executor.err != nil {
		return nil, executor.err
	}

	return &acquire.Result{StorageKey: "video/2026/08/30/cafe", ByteSize: 99}, nil
}

func startService(t *testing.T, executor acquire.Executor) (*sync.WaitGroup, context.CancelFunc, acquireServiceHandle) {
	t.Helper()

	service, err := acquire.New(acquire.Config{Parallelism: 2}, executor, event.New())
	require.Nil(t, err)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Nil(t, service.Run(ctx))
		wg.Done()
	}()

	return wg, cancel, service
}

// acquireServiceHandle is the surface of the acquire service these
// tests exercise.
type acquireServiceHandle interface {
	Submit(request acquire.Request) (*acquire.Task, error)
	Task(id uuid.UUID) *acquire.Task
	AllTasks() []*acquire.Task
	CancelTask(id uuid.UUID) error
}

func waitForStatus(t *testing.T, service acquireServiceHandle, id uuid.UUID, want acquire.TaskStatus) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if task := service.Task(id); task != nil && task.Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	if task := service.Task(id); task != nil {
		t.Fatalf("task %s never reached status %s (currently %s)", id, want, task.Status())
	}
	t.Fatalf("task %s was never observed", id)
}

func TestServiceExecutesSubmittedTask(t *testing.T) {
	executor := &stubExecutor{}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	task, err := service.Submit(acquire.Request{URL: "https://example.com/v", UserID: 1, MediaKind: "video"})
	require.Nil(t, err)
	assert.NotEmpty(t, task.Request.Fingerprint(), "fingerprint is derived at submission")

	waitForStatus(t, service, task.ID, acquire.COMPLETED)
	assert.Equal(t, int32(1), atomic.LoadInt32(&executor.executions))
	assert.Equal(t, int64(99), task.Result().ByteSize)
	assert.Equal(t, 100, task.Progress())
}

func TestServiceRejectsMalformedURLBeforeCreatingTask(t *testing.T) {
	executor := &stubExecutor{}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	_, err := service.Submit(acquire.Request{URL: "ftp://example.com/file", UserID: 1})
	require.NotNil(t, err)
	assert.Equal(t, acquire.ValidationFailure, acquire.KindOf(err))
	assert.Len(t, service.AllTasks(), 0)
}

func TestServiceRecordsExecutorFailure(t *testing.T) {
	executor := &stubExecutor{err: assert.AnError}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	task, err := service.Submit(acquire.Request{URL: "https://example.com/v", UserID: 1})
	require.Nil(t, err)

	waitForStatus(t, service, task.ID, acquire.FAILED)
	assert.NotNil(t, task.FailureCause())
	assert.Nil(t, task.Result())
}

func TestServiceTaskLookup(t *testing.T) {
	executor := &stubExecutor{}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	task, err := service.Submit(acquire.Request{URL: "https://example.com/v", UserID: 1})
	require.Nil(t, err)

	assert.Equal(t, task, service.Task(task.ID))
	assert.Nil(t, service.Task(uuid.New()))
	assert.Len(t, service.AllTasks(), 1)
}

func TestServiceCancelUnknownTask(t *testing.T) {
	executor := &stubExecutor{}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	err := service.CancelTask(uuid.New())
	assert.ErrorIs(t, err, acquire.ErrTaskNotFound)
}

func TestServiceCancelCompletedTaskIsDenied(t *testing.T) {
	executor := &stubExecutor{}
	wg, cancel, service := startService(t, executor)
	defer func() {
		cancel()
		wg.Wait()
	}()

	task, err := service.Submit(acquire.Request{URL: "https://example.com/v", UserID: 1})
	require.Nil(t, err)
	waitForStatus(t, service, task.ID, acquire.COMPLETED)

	err = service.CancelTask(task.ID)
	require.NotNil(t, err)
	assert.Equal(t, acquire.CancellationDenied, acquire.KindOf(err))
	assert.Equal(t, acquire.COMPLETED, task.Status(), "completion is final")
}

func TestServiceCancelPendingTask(t *testing.T) {
	// An unstarted service never claims tasks, so submissions stay
	// pending and remain cancellable.
	service, err := acquire.New(acquire.Config{Parallelism: 1}, &stubExecutor{}, event.New())
	require.Nil(t, err)

	task, err := service.Submit(acquire.Request{URL: "https://example.com/v", UserID: 1})
	require.Nil(t, err)
	assert.Equal(t, acquire.PENDING, task.Status())

	require.Nil(t, service.CancelTask(task.ID))
	assert.Equal(t, acquire.CANCELLED, task.Status())

	// A cancelled task cannot be cancelled again
	err = service.CancelTask(task.ID)
	require.NotNil(t, err)
	assert.Equal(t, acquire.CancellationDenied, acquire.KindOf(err))
}
