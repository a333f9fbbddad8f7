package engine

import (
	"sync"

	"github.com/Zombieliu/gear/internal/ir"
)

// messageQueue is a thread-safe FIFO of messages waiting for dispatch.
//
// The queue is unbounded: one invocation may send any number of messages
// and committing them must never block the loop.
//
// A buffered signal channel lets the Run loop wait for work and for
// context cancellation in the same select.
type messageQueue struct {
	mu     sync.Mutex
	items  []ir.Message
	closed bool
	signal chan struct{} // buffered, size 1
}

func newMessageQueue() *messageQueue {
	return &messageQueue{
		items:  make([]ir.Message, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the queue.
// Returns false if the queue is closed.
func (q *messageQueue) Enqueue(m ir.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, m)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front message without blocking.
func (q *messageQueue) TryDequeue() (ir.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return ir.Message{}, false
	}
	m := q.items[0]

	// Clear the slot so the payload can be collected.
	q.items[0] = ir.Message{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return m, true
}

// Wait returns a channel that fires when messages may be available, and
// is closed when the queue is closed.
func (q *messageQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued messages.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes any waiter.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
