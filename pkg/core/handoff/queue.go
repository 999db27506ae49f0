// Package handoff implements the unbounded FIFO channel used to pass work
// from a producer goroutine to a consumer goroutine without sharing any
// other state.
package handoff

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("handoff queue closed")

// Queue is an unbounded FIFO. Push never blocks. Items come out in the
// order they went in.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	// ready holds at most one wakeup; a consumer re-checks the queue after
	// every wakeup so a stale token only costs one extra TryPop.
	ready chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{items: queue.New(), ready: make(chan struct{}, 1)}
}

// Push appends v. Pushing to a closed queue drops v and reports false.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.Add(v)
	q.mu.Unlock()
	q.wake()
	return true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.items.Remove().(T), true
}

// Pop blocks until an item is available, the queue is closed and empty,
// or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if q.Closed() {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close stops accepting new items. Queued items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
