package engine

import (
	"sync"

	"github.com/chelinho139/glitchbot/internal/model"
)

// MentionQueue is a thread-safe FIFO of mentions waiting for a reply cycle.
//
// The queue is unbounded so a large mention batch never blocks ingestion.
// Feeders enqueue from any goroutine while the scheduler loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the loop.
type MentionQueue struct {
	mu       sync.Mutex
	mentions []model.Mention
	queued   map[string]bool
	closed   bool
	signal   chan struct{} // buffered, size 1
}

// NewMentionQueue creates an empty queue.
func NewMentionQueue() *MentionQueue {
	return &MentionQueue{
		mentions: make([]model.Mention, 0, 16),
		queued:   make(map[string]bool),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends mentions in order, skipping ids already waiting.
// Returns the number added; zero once the queue is closed.
func (q *MentionQueue) Enqueue(mentions ...model.Mention) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}

	added := 0
	for _, m := range mentions {
		if m.ID == "" || q.queued[m.ID] {
			continue
		}
		q.queued[m.ID] = true
		q.mentions = append(q.mentions, m)
		added++
	}

	if added > 0 {
		// Non-blocking: the buffer of 1 coalesces signals.
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return added
}

// TryDequeue removes the front mention without blocking.
// Returns false when the queue is empty.
func (q *MentionQueue) TryDequeue() (model.Mention, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.mentions) == 0 {
		return model.Mention{}, false
	}

	m := q.mentions[0]
	q.mentions[0] = model.Mention{}
	if len(q.mentions) == 1 {
		q.mentions = q.mentions[:0]
	} else {
		q.mentions = q.mentions[1:]
	}
	delete(q.queued, m.ID)
	return m, true
}

// Wait returns a channel that signals when mentions may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // TryDequeue
//	}
func (q *MentionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting mentions.
func (q *MentionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mentions)
}

// Close stops further enqueues and wakes any waiters.
func (q *MentionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
