package network

import (
	"context"
	"sync"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// Queue is the bounded FIFO between connection handlers (producers) and
// the single topic consumer. Send blocks while the queue is full, which
// suspends only the calling connection.
type Queue struct {
	ch        chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity envelopes.
// Non-positive capacity falls back to the default.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = protocol.DefaultQueueCapacity
	}
	return &Queue{
		ch:   make(chan protocol.Envelope, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues env, waiting for space. It fails with ErrQueueClosed once
// the consumer has gone, or with ctx's error.
func (q *Queue) Send(ctx context.Context, env protocol.Envelope) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- env:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive takes the oldest envelope, waiting until one is available
func (q *Queue) Receive(ctx context.Context) (protocol.Envelope, error) {
	select {
	case <-q.done:
		return protocol.Envelope{}, ErrQueueClosed
	default:
	}

	select {
	case env := <-q.ch:
		return env, nil
	case <-q.done:
		return protocol.Envelope{}, ErrQueueClosed
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

// Close marks the consumer as gone. Blocked and future producers get
// ErrQueueClosed. Envelopes still buffered are dropped.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// Done is closed once the queue is closed
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of buffered envelopes
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}
