// Package queue provides the bounded in-memory queue and worker pool that
// write session journal entries in the background.
package queue

import (
	"context"
	"sync"
)

// MemoryQueue is a channel-backed queue holding any job type.
type MemoryQueue[T any] struct {
	jobs     chan T
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewMemoryQueue creates a new in-memory queue with the given capacity.
func NewMemoryQueue[T any](capacity int) *MemoryQueue[T] {
	return &MemoryQueue[T]{
		jobs:     make(chan T, capacity),
		capacity: capacity,
	}
}

// Enqueue adds a job to the queue. Returns error if queue is full or closed.
// The read lock is held for the whole send so Close cannot race it.
func (q *MemoryQueue[T]) Enqueue(job T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue returns the next job, blocking until one is available.
// Jobs still buffered when the queue closes are drained before ErrQueueClosed.
func (q *MemoryQueue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	q.mu.RLock()
	jobs := q.jobs
	q.mu.RUnlock()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case job, ok := <-jobs:
		if !ok {
			return zero, ErrQueueClosed
		}
		return job, nil
	}
}

// Close closes the queue. No more jobs can be enqueued after closing.
func (q *MemoryQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

// Reset resets the queue to a fresh state. This is primarily for testing.
func (q *MemoryQueue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
	q.jobs = make(chan T, q.capacity)
}

// Len returns the current number of jobs in the queue.
func (q *MemoryQueue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// Capacity returns the queue capacity.
func (q *MemoryQueue[T]) Capacity() int {
	return q.capacity
}
