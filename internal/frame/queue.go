package frame

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Queue is a bounded FIFO of frames for one producer and one consumer.
// Push never blocks: when the queue is full the oldest frame is dropped to
// make room. Surviving frames keep their arrival order.
type Queue struct {
	mu       sync.Mutex
	items    []Frame
	capacity int

	// Statistics
	pushed  uint64
	popped  uint64
	evicted uint64

	// signal is pulsed on every push so a single waiting consumer wakes up.
	signal chan struct{}
}

// QueueStats represents queue statistics
type QueueStats struct {
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Evicted  uint64 `json:"evicted"`
}

// NewQueue creates a bounded queue with the given capacity
func NewQueue(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("queue capacity must be at least 1, got %d", capacity)
	}

	return &Queue{
		items:    make([]Frame, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}, nil
}

// Push adds a frame to the queue, evicting the oldest frame if the queue is
// full. It reports whether an eviction happened.
func (q *Queue) Push(f Frame) bool {
	q.mu.Lock()

	evicted := false
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.evicted++
		evicted = true
	}

	q.items = append(q.items, f)
	q.pushed++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return evicted
}

// Pop removes and returns the oldest frame without blocking.
func (q *Queue) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Frame{}, false
	}

	f := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	q.popped++

	return f, true
}

// PopWait removes and returns the oldest frame, waiting up to timeout for one
// to arrive. It returns false on timeout or context cancellation.
func (q *Queue) PopWait(ctx context.Context, timeout time.Duration) (Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if f, ok := q.Pop(); ok {
			return f, true
		}

		select {
		case <-q.signal:
			// Retry; the signal may also be a leftover pulse from a frame
			// that was already consumed.
		case <-timer.C:
			return Frame{}, false
		case <-ctx.Done():
			return Frame{}, false
		}
	}
}

// Len returns the current number of queued frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Capacity returns the maximum number of queued frames
func (q *Queue) Capacity() int {
	return q.capacity
}

// GetStats returns current queue statistics
func (q *Queue) GetStats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Length:   len(q.items),
		Capacity: q.capacity,
		Pushed:   q.pushed,
		Popped:   q.popped,
		Evicted:  q.evicted,
	}
}
