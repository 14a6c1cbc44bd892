package gateway

import (
	"sync"
	"time"
)

// outMessage is one queued outbound frame. Payload is pre-marshaled so
// fan-out never serializes per session.
type outMessage struct {
	msgType   string
	symbol    string
	timeframe string
	payload   []byte
}

// outQueue is the bounded per-session outbound queue. Producers are
// aggregator workers doing non-blocking enqueues; the consumer is the
// session's single writer loop.
//
// When the queue is full, the oldest pending message of the same type
// for the same (symbol, timeframe) is evicted to make room, giving
// latest-state semantics per stream. If nothing evictable exists the
// new message is dropped and counted.
type outQueue struct {
	mu     sync.Mutex
	items  []outMessage
	limit  int
	closed bool

	drops       uint64
	windowStart time.Time
	windowDrops int

	notify chan struct{}
}

func newOutQueue(limit int) *outQueue {
	if limit <= 0 {
		limit = 256
	}
	return &outQueue{
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// enqueue adds msg, applying the eviction policy. The second return
// reports whether this enqueue pushed the rolling drop count past
// threshold (the slow-consumer trip).
func (q *outQueue) enqueue(msg outMessage, threshold int, window time.Duration) (ok, tripped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, false
	}

	if len(q.items) >= q.limit {
		if i := q.oldestSame(msg); i >= 0 {
			q.items = append(q.items[:i], q.items[i+1:]...)
		} else {
			q.drops++
			tripped = q.noteDrop(threshold, window)
			return false, tripped
		}
	}
	q.items = append(q.items, msg)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true, false
}

// oldestSame finds the front-most pending message with the same type
// and routing key as msg.
func (q *outQueue) oldestSame(msg outMessage) int {
	for i, m := range q.items {
		if m.msgType == msg.msgType && m.symbol == msg.symbol && m.timeframe == msg.timeframe {
			return i
		}
	}
	return -1
}

func (q *outQueue) noteDrop(threshold int, window time.Duration) bool {
	now := time.Now()
	if q.windowStart.IsZero() || now.Sub(q.windowStart) > window {
		q.windowStart = now
		q.windowDrops = 0
	}
	q.windowDrops++
	return threshold > 0 && q.windowDrops > threshold
}

// dequeue pops the front message. ok is false when the queue is empty.
func (q *outQueue) dequeue() (outMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return outMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

func (q *outQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *outQueue) dropCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// close discards pending messages and rejects further enqueues.
func (q *outQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
