package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLaneStopped is returned by Push after Stop.
var ErrLaneStopped = errors.New("queue: lane is stopped")

// Handler processes one item. Its error is reported to the lane's ErrorFunc.
type Handler[T any] func(item T) error

// ErrorFunc is called with every item whose handler failed or panicked.
type ErrorFunc[T any] func(item T, err error)

// Lane processes items strictly one at a time, in FIFO order, on a single
// worker goroutine. A failing or panicking item never stops the worker.
type Lane[T any] struct {
	items   *FIFO[T]
	handle  Handler[T]
	onError ErrorFunc[T]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLane creates a stopped lane. handle must not be nil; onError may be nil.
func NewLane[T any](handle Handler[T], onError ErrorFunc[T]) *Lane[T] {
	if handle == nil {
		panic("queue: handler must not be nil")
	}
	return &Lane[T]{
		items:   NewFIFO[T](),
		handle:  handle,
		onError: onError,
	}
}

// Start launches the worker goroutine. Calling Start on a running lane is a no-op.
func (l *Lane[T]) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx, l.done)
}

// Push enqueues item without blocking.
func (l *Lane[T]) Push(item T) error {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return ErrLaneStopped
	}
	l.items.Push(item)
	return nil
}

// Stop stops the worker after the in-flight item (if any) completes. The
// in-flight handler is never interrupted. Items still queued are discarded
// and returned.
func (l *Lane[T]) Stop() []T {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	return l.items.Drain()
}

// Running reports whether the worker is active.
func (l *Lane[T]) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Pending returns the number of items waiting behind the in-flight one.
func (l *Lane[T]) Pending() int {
	return l.items.Len()
}

// run is the lane's worker loop.
func (l *Lane[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		item, err := l.items.Pop(ctx)
		if err != nil {
			return
		}
		if err := l.safeExec(item); err != nil && l.onError != nil {
			l.onError(item, err)
		}
	}
}

// safeExec runs the handler and recovers from panics, converting them to errors.
func (l *Lane[T]) safeExec(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: panic: %v", r)
		}
	}()
	return l.handle(item)
}
