package utils

import (
	"errors"
	"sync"
)

// ErrPoolFull is returned by TrySubmit when the queue has no room.
var ErrPoolFull = errors.New("worker pool queue is full")

// ErrPoolClosed is returned when submitting after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Job represents a task to be executed by a worker.
type Job struct {
	Task func()
}

// WorkerPool manages a pool of workers to execute jobs. With one worker jobs
// run in submission order.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a WorkerPool with the given number of workers and a
// queue holding up to queueSize pending jobs.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.Task()
	}
}

// Submit adds a job, blocking while the queue is full.
func (wp *WorkerPool) Submit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}
	wp.jobQueue <- Job{Task: task}
	return nil
}

// TrySubmit adds a job without blocking.
func (wp *WorkerPool) TrySubmit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}
	select {
	case wp.jobQueue <- Job{Task: task}:
		return nil
	default:
		return ErrPoolFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()
	wp.waitGroup.Wait()
}
