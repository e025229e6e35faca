package queue

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Put when the caller's context ends while the
// queue is full.
var ErrStopped = errors.New("queue: stopped while waiting for capacity")

// BoundedQueue is a fixed-capacity FIFO shared by one pipeline stage that
// produces and one that consumes. Put never drops items.
type BoundedQueue[T any] struct {
	items chan T
}

func New[T any](capacity int) *BoundedQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedQueue[T]{items: make(chan T, capacity)}
}

// Put blocks until there is room for item or ctx is done.
func (q *BoundedQueue[T]) Put(ctx context.Context, item T) error {
	select {
	case q.items <- item:
		return nil
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrStopped, ctx.Err())
	}
}

// TryGet returns the oldest item without blocking.
func (q *BoundedQueue[T]) TryGet() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Get waits up to timeout for an item. It returns early with ok=false when
// ctx is done.
func (q *BoundedQueue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	if item, ok := q.TryGet(); ok {
		return item, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

func (q *BoundedQueue[T]) Len() int {
	return len(q.items)
}

func (q *BoundedQueue[T]) Cap() int {
	return cap(q.items)
}
