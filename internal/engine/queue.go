package engine

import (
	"sync"

	"github.com/roach88/pnftm/internal/ir"
)

// EventType distinguishes writes from reads.
type EventType int

const (
	// EventTypeTx is a state-changing transaction.
	EventTypeTx EventType = iota + 1
	// EventTypeQuery is a read-only view call.
	EventTypeQuery
)

// Call is a method invocation submitted to the engine.
type Call struct {
	From   ir.Address
	Method string
	Args   ir.IRObject
	Value  ir.Amount
}

// outcome carries the loop's answer back to the caller.
type outcome struct {
	receipt ir.Receipt
	result  ir.IRObject
	err     error
}

// Event is one queued call. reply is buffered so the loop never blocks on
// a caller that gave up.
type Event struct {
	Type  EventType
	Call  Call
	reply chan outcome
}

func newEvent(t EventType, c Call) Event {
	return Event{Type: t, Call: c, reply: make(chan outcome, 1)}
}

// eventQueue is a thread-safe unbounded FIFO.
//
// Callers on any goroutine enqueue; the Run loop dequeues. The signal
// channel lets the loop wait on the queue and ctx in one select.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Drop the slot's references so the backing array does not pin args
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes the loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// drain empties the queue and returns what was left.
func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.events
	q.events = nil
	return rest
}
