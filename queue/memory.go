package queue

import (
	"context"
	"sync"
)

// DefaultSize is the capacity of a MemoryQueue created with size <= 0.
const DefaultSize = 1024

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch     chan Task
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemory creates a MemoryQueue holding at most size tasks.
func NewMemory(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryQueue{
		ch:   make(chan Task, size),
		done: make(chan struct{}),
	}
}

// Enqueue adds a task, blocking until there is room, ctx is done or the
// queue is closed.
func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the next task. Tasks enqueued before Close are still
// returned; ErrClosed follows once they are drained.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case t, ok := <-q.ch:
		if !ok {
			return Task{}, ErrClosed
		}
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Len returns the number of buffered tasks.
func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Close rejects further enqueues. It is safe to call more than once.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		close(q.done)

		// Wait for blocked senders to observe done before closing ch.
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	return nil
}
