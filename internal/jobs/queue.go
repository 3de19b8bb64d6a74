package jobs

import (
	"context"
	"sync"
)

// Queue feeds job ids to the single worker in submission order.
type Queue interface {
	// Enqueue appends a job id. The queue is unbounded, so Enqueue never
	// blocks on the worker.
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks until an id is available or ctx is done.
	Dequeue(ctx context.Context) (string, error)
	// Len reports the current backlog.
	Len() int
}

// MemoryQueue is the in-process FIFO used by a single-process backend.
type MemoryQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []string
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{items: make([]string, 0, 64)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	// Wake the Wait below when the context ends; Cond has no native
	// context support. The broadcast must hold the lock: an unlocked
	// broadcast can land between the ctx.Err check and Wait parking the
	// waiter, and that wakeup is lost.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		q.cond.Wait()
	}
	jobID := q.items[0]
	q.items = q.items[1:]
	return jobID, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
