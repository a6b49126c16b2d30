package worker

import "github.com/DINO060/mediasink/pkg/logger"

var workerLogger = logger.Get("Worker")

type (
	WakeupChan   chan int
	WorkerStatus int

	// WorkFn is the unit of work executed by a worker. The boolean
	// return indicates whether any work was actually performed; when
	// false the worker goes back to sleep until woken.
	WorkFn func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WakeupChan
		Label() string
		Sleep() bool
		Close()
	}
)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type taskWorker struct {
	label         string
	fn            WorkFn
	wakeupChan    WakeupChan
	currentStatus WorkerStatus
}

func NewWorker(label string, fn WorkFn) *taskWorker {
	return &taskWorker{
		label:      label,
		fn:         fn,
		wakeupChan: make(WakeupChan),
	}
}

// Start runs this workers work function repeatedly until it reports
// that no work remains, at which point the worker sleeps until it is
// woken via it's wakeup channel. Closure of the wakeup channel causes
// this method to return.
func (worker *taskWorker) Start() {
	worker.currentStatus = Working
	for {
		didWork, err := worker.fn(worker)
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker '%s' reported an error(%T): %v\n", worker.label, err, err)
		}

		if didWork {
			continue
		}

		if isAlive := worker.Sleep(); !isAlive {
			return
		}
	}
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WakeupChan {
	return worker.wakeupChan
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Close closes the Worker by closing the WakeupChan.
// Note that this does not interrupt currently running
// work.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = Sleeping

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = Working
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%s' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = Finished
	}

	return isAlive
}
