package relay

import (
	"context"
	"sync"
)

// segmentQueue is an unbounded FIFO of synthesis segments with a single
// consumer. push never blocks, so token relay is never held up by synthesis.
type segmentQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	notify chan struct{}
}

func newSegmentQueue() *segmentQueue {
	return &segmentQueue{notify: make(chan struct{}, 1)}
}

// push appends a segment. Pushing to a closed queue is a no-op.
func (q *segmentQueue) push(segment string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, segment)
	q.mu.Unlock()
	q.wake()
}

// close marks the end of input. Segments already queued are still delivered.
func (q *segmentQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *segmentQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a segment is available, the queue is closed and drained,
// or ctx is done. ok is false in the latter two cases.
func (q *segmentQueue) pop(ctx context.Context) (segment string, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			segment = q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return segment, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return "", false
		}
	}
}

