package syncq

import (
	"errors"

	"github.com/kolkov/reclock/lock"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("syncq: queue closed")

// Queue is an unbounded, blocking FIFO safe for concurrent use.
type Queue[T any] struct {
	mu     *lock.Mutex
	cond   *lock.Cond
	items  []T
	head   int
	closed bool
}

// NewQueue returns an empty queue. opts configure the queue's mutex.
func NewQueue[T any](opts ...lock.Option) *Queue[T] {
	mu := lock.New(opts...)
	return &Queue[T]{
		mu:   mu,
		cond: lock.NewCond(mu),
	}
}

// Enqueue appends v and wakes one waiting consumer.
func (q *Queue[T]) Enqueue(v T) error {
	err := lock.Do(q.mu, func() error {
		if q.closed {
			return ErrQueueClosed
		}
		q.items = append(q.items, v)
		return nil
	})
	if err != nil {
		return err
	}
	q.cond.Signal()
	return nil
}

// Dequeue removes the oldest item, blocking while the queue is empty.
// It returns false once the queue is closed and empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.pop()
}

// TryDequeue removes the oldest item if there is one.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, q.len())
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// Close stops Enqueue and wakes every consumer. Items already queued can
// still be dequeued. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	_ = lock.Do(q.mu, func() error {
		q.closed = true
		return nil
	})
	q.cond.Broadcast()
}

func (q *Queue[T]) len() int {
	return len(q.items) - q.head
}

// pop must be called with q.mu held.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.len() == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	// Reclaim the consumed prefix once it dominates the slice.
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}
