package engine

import (
	"sync"

	"github.com/roach88/simbridge/internal/model"
)

// TokenQueue is a thread-safe FIFO of tokens from one input channel.
//
// The queue is unbounded so a producer never blocks and never drops a token,
// whatever the Dispatcher is doing. There is one producer (the channel's pump)
// and one consumer (the Dispatcher).
//
// A buffered signal channel lets the Dispatcher sleep until a token arrives
// instead of polling.
type TokenQueue struct {
	mu     sync.Mutex
	tokens []model.Token
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewTokenQueue creates an empty queue.
func NewTokenQueue() *TokenQueue {
	return &TokenQueue{
		tokens: make([]model.Token, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a token. Safe from any goroutine; never blocks.
// Returns false if the queue is closed.
func (q *TokenQueue) Enqueue(t model.Token) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tokens = append(q.tokens, t)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the oldest token without blocking.
// Returns ("", false) if the queue is empty.
func (q *TokenQueue) TryDequeue() (model.Token, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tokens) == 0 {
		return "", false
	}

	t := q.tokens[0]

	if len(q.tokens) == 1 {
		// Reuse the backing array once drained.
		q.tokens = q.tokens[:0]
	} else {
		q.tokens = q.tokens[1:]
	}

	return t, true
}

// Wait returns a channel that fires when tokens may be available.
// It is closed once the queue is closed.
func (q *TokenQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued tokens.
func (q *TokenQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tokens)
}

// Close rejects further enqueues and wakes any waiter.
// Tokens already queued can still be dequeued.
func (q *TokenQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *TokenQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drained reports whether the queue is closed and empty: no token will
// ever be dequeued again.
func (q *TokenQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.tokens) == 0
}
