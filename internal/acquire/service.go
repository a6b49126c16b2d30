package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/DINO060/mediasink/internal/event"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/DINO060/mediasink/pkg/worker"
	"github.com/google/uuid"
)

var (
	serviceLog = logger.Get("AcquireServ")

	ErrTaskNotFound = errors.New("no task found")
)

type (
	// Executor runs the acquisition pipeline for one task. Satisfied
	// by *Pipeline; substitutable in tests.
	Executor interface {
		Execute(ctx context.Context, task *Task) (*Result, error)
	}

	Config struct {
		// Parallelism bounds how many acquisitions run concurrently
		// within this process.
		Parallelism int `yaml:"parallelism" env:"ACQUIRE_PARALLELISM" env-default:"4"`

		Pipeline PipelineConfig `yaml:"pipeline"`
	}

	// acquireService is the task-queue substrate the orchestrator
	// runs under: callers submit requests, workers pull pending tasks
	// and drive them through the pipeline, and observers poll task
	// status/result (or subscribe to the event bus). Tasks live in
	// memory; the durable outcome of an acquisition lives in the
	// object store, the artifact records and the content cache.
	acquireService struct {
		*sync.Mutex

		config     Config
		tasks      []*Task
		executor   Executor
		eventBus   event.EventCoordinator
		workerPool *worker.WorkerPool

		runCtx context.Context
	}
)

// New creates the acquisition service and populates its worker pool.
// The configured scratch dir is validated to be a usable directory,
// being created if missing.
func New(config Config, executor Executor, eventBus event.EventCoordinator) (*acquireService, error) {
	if tempDir := config.Pipeline.TempDir; tempDir != "" {
		if info, err := os.Stat(tempDir); err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("scratch path '%s' is not a directory", tempDir)
			}
		} else if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(tempDir, os.ModeDir|os.ModePerm); err != nil {
				return nil, fmt.Errorf("scratch path '%s' could not be created: %w", tempDir, err)
			}
		} else {
			return nil, fmt.Errorf("scratch path '%s' could not be accessed: %w", tempDir, err)
		}
	}

	if config.Parallelism < 1 {
		config.Parallelism = 1
	}

	service := &acquireService{
		Mutex:      &sync.Mutex{},
		config:     config,
		tasks:      make([]*Task, 0),
		executor:   executor,
		eventBus:   eventBus,
		workerPool: worker.NewWorkerPool(),
	}

	for i := 0; i < config.Parallelism; i++ {
		label := fmt.Sprintf("acquire-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performNextTask))
	}

	return service, nil
}

// Run is the main entry point of this service; it starts the worker
// pool and blocks until the provided context is cancelled, at which
// point in-flight acquisitions are allowed to finish.
func (service *acquireService) Run(ctx context.Context) error {
	service.Lock()
	service.runCtx = ctx
	service.Unlock()

	if err := service.workerPool.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	serviceLog.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for in-flight acquisitions.\n")
	service.workerPool.Close()
	return nil
}

// Submit validates and accepts an acquisition request, returning the
// pending task tracking it. The URL fingerprint is derived here, once;
// a malformed URL is rejected before a task is created.
func (service *acquireService) Submit(request Request) (*Task, error) {
	fingerprint, err := Fingerprint(request.URL)
	if err != nil {
		return nil, err
	}
	if request.MediaKind == "" {
		request.MediaKind = "video"
	}
	request.fingerprint = fingerprint

	task := NewTask(request)

	service.Lock()
	service.tasks = append(service.tasks, task)
	service.Unlock()

	serviceLog.Emit(logger.NEW, "Accepted acquisition %s for user %d (fingerprint %.12s...)\n", task.ID, request.UserID, fingerprint)
	service.eventBus.Dispatch(event.TaskUpdateEvent, task.ID)
	service.workerPool.WakeupWorkers()

	return task, nil
}

// Task returns the task with a matching ID, or nil.
func (service *acquireService) Task(id uuid.UUID) *Task {
	service.Lock()
	defer service.Unlock()

	for _, task := range service.tasks {
		if task.ID == id {
			return task
		}
	}

	return nil
}

// AllTasks returns a snapshot of every task known to this service.
func (service *acquireService) AllTasks() []*Task {
	service.Lock()
	defer service.Unlock()

	tasks := make([]*Task, len(service.tasks))
	copy(tasks, service.tasks)
	return tasks
}

// CancelTask cancels a pending task. Cancellation is only effective
// before a worker claims the task; an in-flight task runs to its own
// conclusion and cannot be cancelled.
func (service *acquireService) CancelTask(id uuid.UUID) error {
	task := service.Task(id)
	if task == nil {
		return ErrTaskNotFound
	}

	if !task.cancel() {
		return newPipelineError(CancellationDenied, fmt.Sprintf("task %s is %s and can no longer be cancelled", id, task.Status()), nil)
	}

	serviceLog.Emit(logger.REMOVE, "Cancelled task %s\n", id)
	service.eventBus.Dispatch(event.TaskUpdateEvent, task.ID)
	service.eventBus.Dispatch(event.TaskCompleteEvent, task.ID)
	return nil
}

// performNextTask is the worker function for this service: claim the
// oldest pending task and drive it through the executor. Returns
// false when no pending work remains, sending the worker to sleep.
func (service *acquireService) performNextTask(w worker.Worker) (bool, error) {
	task := service.claimPendingTask()
	if task == nil {
		return false, nil
	}

	service.eventBus.Dispatch(event.TaskUpdateEvent, task.ID)

	result, err := service.executor.Execute(service.runContext(), task)
	if err != nil {
		serviceLog.Emit(logger.ERROR, "Task %s failed (%s): %v\n", task.ID, KindOf(err), err)
		task.markFailed(err)
	} else {
		task.markCompleted(result)
		serviceLog.Emit(logger.SUCCESS, "Task %s completed (%d bytes, cached=%t)\n", task.ID, result.ByteSize, result.FromCache)
	}

	service.eventBus.Dispatch(event.TaskUpdateEvent, task.ID)
	service.eventBus.Dispatch(event.TaskCompleteEvent, task.ID)
	return true, nil
}

func (service *acquireService) claimPendingTask() *Task {
	service.Lock()
	defer service.Unlock()

	for _, task := range service.tasks {
		if task.claim() {
			return task
		}
	}

	return nil
}

func (service *acquireService) runContext() context.Context {
	service.Lock()
	defer service.Unlock()

	if service.runCtx != nil {
		return service.runCtx
	}

	return context.Background()
}
