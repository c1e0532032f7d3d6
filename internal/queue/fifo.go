package queue

import (
	"context"
	"sync"
)

// FIFO is an unbounded first-in first-out queue with a blocking Pop. Push
// never blocks, so a producer is never held up by a slow or absent consumer.
// It is built for a single consumer; several concurrent Pop callers each get
// distinct items but no fairness is promised between them.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

// NewFIFO returns an empty queue.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{signal: make(chan struct{}, 1)}
}

// Push appends v and wakes a waiting consumer.
func (q *FIFO[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest item without waiting.
func (q *FIFO[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Pop removes and returns the oldest item, waiting until one is pushed or ctx
// is done.
func (q *FIFO[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain empties the queue and returns what was in it, oldest first.
func (q *FIFO[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
