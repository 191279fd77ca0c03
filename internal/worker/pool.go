// Package worker runs tasks on a fixed pool of goroutines.
//
// A Dispatcher owns a bounded task queue and a pool of worker channels. Each
// idle worker registers its channel in the pool; the dispatch loop hands every
// queued task to the next registered channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when the task queue has no room.
	ErrQueueFull = errors.New("worker: task queue full")
	// ErrStopped is returned by Submit after Stop, and reported for queued tasks
	// that never ran.
	ErrStopped = errors.New("worker: dispatcher stopped")
)

// Task is a unit of work.
type Task interface {
	ID() string
	Execute(ctx context.Context) error
}

// Result reports how a task ended.
type Result struct {
	TaskID   string
	Err      error
	Duration time.Duration
}

// ResultFunc receives every Result. It is called from worker goroutines and
// must be safe for concurrent use.
type ResultFunc func(Result)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithResultFunc registers the result callback.
func WithResultFunc(fn ResultFunc) Option {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

type worker struct {
	id         int
	workerPool chan chan Task
	taskCh     chan Task
	d          *Dispatcher
}

func (w *worker) start(ctx context.Context) {
	w.d.wg.Add(1)
	go func() {
		defer w.d.wg.Done()
		for {
			// Register as idle.
			select {
			case w.workerPool <- w.taskCh:
			case <-w.d.quit:
				return
			}

			select {
			case task := <-w.taskCh:
				w.d.run(ctx, w.id, task)
			case <-w.d.quit:
				return
			}
		}
	}()
}

// Dispatcher manages the workers and the task queue.
type Dispatcher struct {
	maxWorkers int
	workerPool chan chan Task
	taskQueue  chan Task
	quit       chan struct{}

	wg      sync.WaitGroup // running workers
	pending sync.WaitGroup // submitted tasks without a result yet

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc

	logger   logrus.FieldLogger
	onResult ResultFunc
}

// NewDispatcher creates a dispatcher with maxWorkers workers and room for
// queueSize waiting tasks.
func NewDispatcher(maxWorkers, queueSize int, opts ...Option) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{
		maxWorkers: maxWorkers,
		workerPool: make(chan chan Task, maxWorkers),
		taskQueue:  make(chan Task, queueSize),
		quit:       make(chan struct{}),
		cancel:     func() {},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the workers and the dispatch loop. Tasks receive a context
// derived from ctx that is cancelled by Stop.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.logger.WithField("workers", d.maxWorkers).Debug("Dispatcher starting")
	for i := 1; i <= d.maxWorkers; i++ {
		w := &worker{id: i, workerPool: d.workerPool, taskCh: make(chan Task), d: d}
		w.start(ctx)
	}
	go d.dispatch()
}

func (d *Dispatcher) dispatch() {
	for {
		select {
		case task := <-d.taskQueue:
			go d.assign(task)
		case <-d.quit:
			return
		}
	}
}

// assign waits for an idle worker and hands it the task.
func (d *Dispatcher) assign(task Task) {
	select {
	case taskCh := <-d.workerPool:
		select {
		case taskCh <- task:
		case <-d.quit:
			d.skip(task)
		}
	case <-d.quit:
		d.skip(task)
	}
}

// Submit queues a task without blocking.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.pending.Add(1)
	select {
	case d.taskQueue <- task:
		return nil
	default:
		d.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every submitted task has reported a result.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Stop cancels the task context, lets running tasks return and reports
// queued tasks as ErrStopped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	close(d.quit)
	cancel()
	d.wg.Wait()

	for {
		select {
		case task := <-d.taskQueue:
			d.skip(task)
		default:
			d.logger.Debug("Dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, workerID int, task Task) {
	started := time.Now()
	err := safeExecute(ctx, task)
	log := d.logger.WithFields(logrus.Fields{"worker": workerID, "task_id": task.ID()})
	if err != nil {
		log.WithError(err).Warn("Task failed")
	} else {
		log.Debug("Task finished")
	}
	d.report(Result{TaskID: task.ID(), Err: err, Duration: time.Since(started)})
}

func (d *Dispatcher) skip(task Task) {
	d.report(Result{TaskID: task.ID(), Err: ErrStopped})
}

func (d *Dispatcher) report(r Result) {
	defer d.pending.Done()
	if d.onResult != nil {
		d.onResult(r)
	}
}

func safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: task %s panicked: %v", task.ID(), r)
		}
	}()
	return task.Execute(ctx)
}
