package queue

import (
	"context"
	"errors"
)

// Enqueue failures. The processor drops the job and counts it either way.
var (
	ErrQueueFull   = errors.New("journal queue is full")
	ErrQueueClosed = errors.New("journal queue is closed")
)

// Queue is a bounded FIFO of jobs consumed by background workers.
type Queue[T any] interface {
	// Enqueue adds a job without blocking.
	Enqueue(job T) error
	// Dequeue blocks until a job is available, ctx ends or the queue closes.
	Dequeue(ctx context.Context) (T, error)
	// Close closes the queue.
	Close()
	// Len returns the current number of jobs in the queue.
	Len() int
	// Capacity returns the queue capacity.
	Capacity() int
}

var _ Queue[JournalJob] = (*MemoryQueue[JournalJob])(nil)
