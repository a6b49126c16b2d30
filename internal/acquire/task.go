package acquire

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus int

const (
	PENDING TaskStatus = iota
	PROCESSING
	COMPLETED
	FAILED
	CANCELLED
)

func (s TaskStatus) String() string {
	return []string{"PENDING", "PROCESSING", "COMPLETED", "FAILED", "CANCELLED"}[s]
}

// Terminal reports whether this status is final. No transition may
// leave a terminal status.
func (s TaskStatus) Terminal() bool {
	return s == COMPLETED || s == FAILED || s == CANCELLED
}

type (
	// Request captures everything the pipeline needs to acquire a
	// media artifact on behalf of a user. The fingerprint is derived
	// once, at submission, from a normalized form of the URL.
	Request struct {
		URL         string
		UserID      int64
		MediaKind   string
		Options     Options
		fingerprint string
	}

	// Options is the opaque option bag forwarded to the source
	// handler. The pipeline itself only understands ForceRefresh.
	Options struct {
		ForceRefresh bool
		Extra        map[string]any
	}

	// Result is the payload of a completed task.
	Result struct {
		PublicURL   string
		StorageKey  string
		ByteSize    int64
		ContentHash string
		Info        MediaInfo
		Metadata    map[string]any
		FromCache   bool
	}

	// MediaInfo is the typed view over the metadata bag a source
	// handler returns from its info extraction.
	MediaInfo struct {
		Title       string  `mapstructure:"title"`
		Description string  `mapstructure:"description"`
		Duration    float64 `mapstructure:"duration"`
		Resolution  string  `mapstructure:"resolution"`
		Uploader    string  `mapstructure:"uploader"`
		SourceID    string  `mapstructure:"id"`
	}

	// Task tracks one unit of acquisition work through its lifecycle.
	// All state transitions are mediated by the methods below; the
	// mutex makes a task safe to observe from API handlers while a
	// worker is driving it.
	Task struct {
		mu sync.Mutex

		ID        uuid.UUID
		Request   Request
		CreatedAt time.Time

		status    TaskStatus
		progress  int
		result    *Result
		cause     error
		updatedAt time.Time
	}
)

func (request *Request) Fingerprint() string { return request.fingerprint }

func NewTask(request Request) *Task {
	return &Task{
		ID:        uuid.New(),
		Request:   request,
		CreatedAt: time.Now(),
		status:    PENDING,
		updatedAt: time.Now(),
	}
}

func (task *Task) Status() TaskStatus {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.status
}

func (task *Task) Progress() int {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.progress
}

// Result returns the payload of a completed task, or nil while the
// task is not yet complete.
func (task *Task) Result() *Result {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.result
}

// FailureCause returns the error a failed task was terminated with.
func (task *Task) FailureCause() error {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.cause
}

func (task *Task) UpdatedAt() time.Time {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.updatedAt
}

// setProgress advances the tasks progress. Progress is monotonic
// while the task is active; regressions and updates against terminal
// tasks are discarded.
func (task *Task) setProgress(progress int) bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status.Terminal() || progress <= task.progress {
		return false
	}

	if progress > 100 {
		progress = 100
	}

	task.progress = progress
	task.updatedAt = time.Now()
	return true
}

// claim transitions a pending task to processing. Returns false if
// the task was not pending (already claimed, or cancelled).
func (task *Task) claim() bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status != PENDING {
		return false
	}

	task.status = PROCESSING
	task.updatedAt = time.Now()
	return true
}

func (task *Task) markCompleted(result *Result) bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status.Terminal() {
		return false
	}

	task.status = COMPLETED
	task.progress = 100
	task.result = result
	task.updatedAt = time.Now()
	return true
}

func (task *Task) markFailed(cause error) bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status.Terminal() {
		return false
	}

	task.status = FAILED
	task.cause = cause
	task.updatedAt = time.Now()
	return true
}

// cancel marks a pending task as cancelled. Cancellation is only
// effective before a worker begins executing the task; once the
// acquisition is in flight it will run to completion and the caller
// is expected to discard the result.
func (task *Task) cancel() bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if task.status != PENDING {
		return false
	}

	task.status = CANCELLED
	task.updatedAt = time.Now()
	return true
}
