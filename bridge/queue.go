package bridge

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned when a command is enqueued for a worker
// generation whose consumer half is gone (the worker already exited).
var ErrChannelClosed = errors.New("wsbridge: channel closed")

type recvState int

const (
	// recvOK indicates a value was dequeued.
	recvOK recvState = iota
	// recvEmpty indicates the queue is currently empty but may still produce.
	recvEmpty
	// recvGone indicates the queue is drained and its producer half closed;
	// no further values can ever arrive.
	recvGone
)

// unbounded single-producer single-consumer queue split into two halves.
//
// Sends never block and fail only once the consumer half is closed. Receives
// never block; buffered values survive a producer close and keep draining
// until the buffer is empty, only then does TryRecv report recvGone.
type queue[T any] struct {
	mu             sync.Mutex
	items          []T
	producerClosed bool
	consumerClosed bool
}

type sender[T any] struct {
	q *queue[T]
}

type receiver[T any] struct {
	q *queue[T]
}

func newQueue[T any]() (*sender[T], *receiver[T]) {
	q := &queue[T]{}
	return &sender[T]{q: q}, &receiver[T]{q: q}
}

// Send enqueues a value. It returns ErrChannelClosed once the consumer half
// has been closed; closing the producer half makes subsequent sends fail the
// same way.
func (s *sender[T]) Send(value T) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	if s.q.consumerClosed || s.q.producerClosed {
		return ErrChannelClosed
	}
	s.q.items = append(s.q.items, value)
	return nil
}

// Close marks the producer half gone. Idempotent.
func (s *sender[T]) Close() {
	s.q.mu.Lock()
	s.q.producerClosed = true
	s.q.mu.Unlock()
}

// TryRecv dequeues at most one value without blocking.
func (r *receiver[T]) TryRecv() (T, recvState) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	var zero T
	if r.q.consumerClosed {
		return zero, recvGone
	}
	if len(r.q.items) > 0 {
		value := r.q.items[0]
		r.q.items[0] = zero
		r.q.items = r.q.items[1:]
		return value, recvOK
	}
	if r.q.producerClosed {
		return zero, recvGone
	}
	return zero, recvEmpty
}

// Close marks the consumer half gone and discards any buffered values.
// Idempotent.
func (r *receiver[T]) Close() {
	r.q.mu.Lock()
	r.q.consumerClosed = true
	r.q.items = nil
	r.q.mu.Unlock()
}
