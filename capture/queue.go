package capture

import "sync"

// frameQueue is a bounded FIFO that evicts the oldest frame when full.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]int16
	limit  int
	ready  chan struct{}
}

func newFrameQueue(limit int) *frameQueue {
	return &frameQueue{
		limit: max(limit, 1),
		ready: make(chan struct{}, 1),
	}
}

// push never blocks. It reports whether an older frame was evicted.
func (q *frameQueue) push(frame []int16) (evicted bool) {
	q.mu.Lock()
	if len(q.frames) >= q.limit {
		q.frames[0] = nil
		q.frames = q.frames[1:]
		evicted = true
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

func (q *frameQueue) drain() [][]int16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
