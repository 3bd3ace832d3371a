package utils

import (
	"sync"
)

// WorkerPool runs submitted tasks on a fixed number of workers, bounding how
// many run simultaneously regardless of how many are queued.
type WorkerPool struct {
	workers   int
	jobQueue  chan func()
	waitGroup sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the specified number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes tasks from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for task := range wp.jobQueue {
		task()
	}
}

// Submit adds a new task to the worker pool. It blocks once the queue is
// full, so submission cannot outrun the workers by more than the queue depth.
func (wp *WorkerPool) Submit(task func()) {
	wp.jobQueue <- task
}

// Workers returns the pool's concurrency bound.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Shutdown waits for all queued tasks to finish and releases the workers.
func (wp *WorkerPool) Shutdown() {
	close(wp.jobQueue)
	wp.waitGroup.Wait()
}
