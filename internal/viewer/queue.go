package viewer

import (
	"sync"

	"stereocast/internal/frame"
)

// DefaultQueueCapacity bounds end-to-end latency to a few frames.
const DefaultQueueCapacity = 3

// Queue is the bounded frame buffer between the delivery goroutine and
// the render loop. When full, the oldest frame is dropped in favor of the
// newest: a live viewer wants freshness, not completeness.
type Queue struct {
	mu       sync.Mutex
	frames   []*frame.Frame
	capacity int
	drops    uint64
}

// NewQueue creates a queue with the given capacity (DefaultQueueCapacity
// if non-positive).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push enqueues a frame, evicting the oldest one if the queue is full.
func (q *Queue) Push(f *frame.Frame) {
	q.mu.Lock()
	if len(q.frames) == q.capacity {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		q.drops++
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
}

// Pop removes and returns the oldest queued frame. It never blocks; ok is
// false when the queue is empty (the render loop then holds the previous
// output).
func (q *Queue) Pop() (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames = q.frames[:len(q.frames)-1]
	return f, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Drops returns how many frames were evicted unrendered.
func (q *Queue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// Clear releases all queued frames.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.frames = nil
	q.mu.Unlock()
}
