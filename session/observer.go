package session

import (
	"sync"

	"parla/transcript"
)

// Observer receives everything the UI shows. Calls arrive in order on a
// single goroutine and never while the session lock is held, so an observer
// may call back into the session.
type Observer interface {
	StatusChanged(status Status)
	Partial(p transcript.Partial)
	Turn(t transcript.Turn)
	Error(msg string)
	Level(rms float64)
}

type NopObserver struct{}

func (NopObserver) StatusChanged(Status)       {}
func (NopObserver) Partial(transcript.Partial) {}
func (NopObserver) Turn(transcript.Turn)       {}
func (NopObserver) Error(string)               {}
func (NopObserver) Level(float64)              {}

// mailbox runs queued notifications in FIFO order on its own goroutine.
// push never blocks, so it is safe under a lock.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newMailbox() *mailbox {
	m := &mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	defer close(m.done)
	for range m.wake {
		for {
			m.mu.Lock()
			batch := m.queue
			m.queue = nil
			closed := m.closed
			m.mu.Unlock()

			for _, fn := range batch {
				fn()
			}
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
		}
	}
}

// close delivers what is already queued and stops the goroutine.
func (m *mailbox) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	<-m.done
}
