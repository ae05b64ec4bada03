package queue

import (
	"fmt"
	"sync"
	"time"
)

// Policy selects what Push does when a bounded queue is full.
type Policy string

const (
	// PolicyUnbounded grows the queue without limit. This is the reference
	// behavior: if the consumer falls behind, memory grows without bound.
	PolicyUnbounded Policy = "unbounded"

	// PolicyDropOldest evicts the oldest block to make room for the new one.
	PolicyDropOldest Policy = "drop-oldest"

	// PolicyDropNewest discards the incoming block and keeps the backlog.
	PolicyDropNewest Policy = "drop-newest"

	// PolicyBlock makes Push wait for space up to the configured timeout,
	// then drop the block. The wait happens on the capture thread, so the
	// timeout must stay well below the device block interval.
	PolicyBlock Policy = "block"
)

// Queue is a FIFO hand-off of PCM blocks between the capture callback and
// the processing goroutine. Push never blocks except under PolicyBlock, and
// then only up to its timeout. Pop waits up to a caller-supplied timeout so
// the consumer can re-check its shutdown flag at a steady interval.
//
// Ordering is strict FIFO; reordering blocks would corrupt frame boundaries
// downstream. A pushed block is owned by the queue afterwards; callers must
// not reuse the slice.
type Queue struct {
	mu       sync.Mutex
	blocks   [][]byte
	capacity int
	policy   Policy
	pushWait time.Duration
	closed   bool

	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}

	// Statistics
	pushed  uint64
	popped  uint64
	dropped uint64
}

// Stats reports queue counters for monitoring.
type Stats struct {
	Pushed  uint64 `json:"pushed"`
	Popped  uint64 `json:"popped"`
	Dropped uint64 `json:"dropped"`
	Depth   int    `json:"depth"`
}

// New creates a queue with the given overflow policy. Capacity is ignored
// for PolicyUnbounded and must be positive otherwise. pushWait is the Push
// timeout for PolicyBlock and is ignored by the other policies.
func New(policy Policy, capacity int, pushWait time.Duration) (*Queue, error) {
	switch policy {
	case PolicyUnbounded:
	case PolicyDropOldest, PolicyDropNewest:
		if capacity < 1 {
			return nil, fmt.Errorf("capacity must be at least 1 for policy %q, got %d", policy, capacity)
		}
	case PolicyBlock:
		if capacity < 1 {
			return nil, fmt.Errorf("capacity must be at least 1 for policy %q, got %d", policy, capacity)
		}
		if pushWait <= 0 {
			return nil, fmt.Errorf("push wait must be positive for policy %q, got %v", policy, pushWait)
		}
	default:
		return nil, fmt.Errorf("unknown overflow policy %q", policy)
	}

	return &Queue{
		capacity: capacity,
		policy:   policy,
		pushWait: pushWait,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Push appends a block. It returns false if the block was dropped because
// the queue is closed or full under a dropping policy, or the PolicyBlock
// wait timed out.
func (q *Queue) Push(block []byte) bool {
	var deadline *time.Timer

	for {
		q.mu.Lock()

		if q.closed {
			q.mu.Unlock()
			return false
		}

		if q.policy == PolicyUnbounded || len(q.blocks) < q.capacity {
			q.blocks = append(q.blocks, block)
			q.pushed++
			q.mu.Unlock()
			signal(q.notEmpty)
			return true
		}

		switch q.policy {
		case PolicyDropOldest:
			q.blocks = q.blocks[1:]
			q.dropped++
			q.blocks = append(q.blocks, block)
			q.pushed++
			q.mu.Unlock()
			signal(q.notEmpty)
			return true

		case PolicyDropNewest:
			q.dropped++
			q.mu.Unlock()
			return false

		case PolicyBlock:
			q.mu.Unlock()

			if deadline == nil {
				deadline = time.NewTimer(q.pushWait)
				defer deadline.Stop()
			}

			select {
			case <-q.notFull:
				// Space may be available now; retry.
			case <-deadline.C:
				q.mu.Lock()
				q.dropped++
				q.mu.Unlock()
				return false
			case <-q.done:
				return false
			}
		}
	}
}

// Pop removes and returns the oldest block, waiting up to timeout for one
// to arrive. It returns ok=false on timeout or when the queue is closed and
// empty. Remaining blocks stay poppable after Close.
func (q *Queue) Pop(timeout time.Duration) ([]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.blocks) > 0 {
			block := q.blocks[0]
			q.blocks = q.blocks[1:]
			q.popped++
			q.mu.Unlock()
			signal(q.notFull)
			return block, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-q.notEmpty:
		case <-deadline.C:
			return nil, false
		case <-q.done:
			return nil, false
		}
	}
}

// Close detaches the producer side: every later Push is discarded. Safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
}

// Len returns the current number of queued blocks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pushed:  q.pushed,
		Popped:  q.popped,
		Dropped: q.dropped,
		Depth:   len(q.blocks),
	}
}

// signal performs a non-blocking send on a capacity-1 notification channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
