// Package queue provides the bounded FIFO used between pipeline stages.
package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is returned on push into a full queue.
	ErrOverflow = errors.New("queue overflow")

	// ErrUnderflow is returned on pop from an empty queue.
	ErrUnderflow = errors.New("queue underflow")
)

// Queue is a fixed-capacity FIFO ring. Pointers wrap modulo capacity; stale
// cells left behind a wrapped pointer are overwritten, never re-read. The
// zero value is not usable, use New.
type Queue[T any] struct {
	buf   []T
	read  int
	write int
	count int
}

// New creates a queue with the given capacity. Capacity must be positive.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("queue capacity %d: must be positive", capacity)
	}
	return &Queue[T]{buf: make([]T, capacity)}, nil
}

// Push appends a value at the write pointer. Pushing into a full queue
// fails with ErrOverflow and leaves the queue untouched; the fullness check
// is evaluated against the state before this call.
func (q *Queue[T]) Push(v T) error {
	if q.count == len(q.buf) {
		return ErrOverflow
	}
	q.buf[q.write] = v
	q.write = (q.write + 1) % len(q.buf)
	q.count++
	return nil
}

// Pop removes and returns the value at the read pointer. Popping from an
// empty queue fails with ErrUnderflow and leaves the queue untouched.
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.count == 0 {
		return zero, ErrUnderflow
	}
	v := q.buf[q.read]
	q.read = (q.read + 1) % len(q.buf)
	q.count--
	return v, nil
}

// Full reports whether count has reached capacity.
func (q *Queue[T]) Full() bool {
	return q.count == len(q.buf)
}

// Empty reports whether the queue holds no elements.
func (q *Queue[T]) Empty() bool {
	return q.count == 0
}

// Len returns the live element count.
func (q *Queue[T]) Len() int {
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Reset logically clears the queue. Cell contents persist in memory until
// overwritten but are never re-read.
func (q *Queue[T]) Reset() {
	q.read, q.write, q.count = 0, 0, 0
}
