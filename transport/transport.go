package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"parla/log"
)

const (
	// OutboxSize bounds frames waiting for the socket writer.
	OutboxSize   = 16
	CloseTimeout = 2 * time.Second
)

// Dialer establishes a connection and returns once the remote side has
// accepted the setup. Events are delivered to sink from a single goroutine.
type Dialer interface {
	Dial(ctx context.Context, setup Setup, sink Sink) (Conn, error)
}

type Conn interface {
	Send(frame string) error
	Close() error
}

type state int

const (
	stateIdle state = iota
	stateDialing
	stateOpen
	stateClosed
)

type Stats struct {
	Sent      int64
	Dropped   int64
	Received  int64
	ConnectMs float64
}

// Transport owns at most one connection. It is single use: after Close every
// Open fails with ErrClosed.
type Transport struct {
	dialer Dialer

	mu         sync.Mutex
	state      state
	conn       Conn
	cancel     context.CancelFunc
	outbox     chan string
	writerDone chan struct{}

	closed    atomic.Bool
	sent      atomic.Int64
	dropped   atomic.Int64
	received  atomic.Int64
	connectMs atomic.Int64
}

func New(d Dialer) *Transport {
	return &Transport{dialer: d}
}

// Open dials and blocks until the connection is usable or fails. Calling it
// while another Open is pending or a connection is live returns ErrAlreadyOpen
// without dialing.
func (t *Transport) Open(ctx context.Context, setup Setup, sink Sink) error {
	t.mu.Lock()
	switch t.state {
	case stateDialing, stateOpen:
		t.mu.Unlock()
		return ErrAlreadyOpen
	case stateClosed:
		t.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state = stateDialing
	t.mu.Unlock()

	start := time.Now()
	conn, err := t.dialer.Dial(ctx, setup, t.dispatch(sink))

	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		if conn != nil {
			go conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		t.state = stateClosed
		t.closed.Store(true)
		t.mu.Unlock()
		cancel()
		return fmt.Errorf("opening connection: %w", err)
	}

	t.conn = conn
	t.state = stateOpen
	t.outbox = make(chan string, OutboxSize)
	t.writerDone = make(chan struct{})
	t.connectMs.Store(time.Since(start).Milliseconds())
	go t.writer(ctx, conn, t.outbox, t.writerDone)
	t.mu.Unlock()
	return nil
}

func (t *Transport) dispatch(sink Sink) Sink {
	return func(ev Event) {
		if t.closed.Load() {
			return
		}
		t.received.Add(1)
		sink(ev)
	}
}

func (t *Transport) writer(ctx context.Context, conn Conn, outbox <-chan string, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-outbox:
			if err := conn.Send(frame); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnf("transport send: %v", err)
				continue
			}
			t.sent.Add(1)
		}
	}
}

// SendAudio never blocks. Frames are dropped while the connection is not
// open, and the oldest queued frame gives way when the writer falls behind.
func (t *Transport) SendAudio(frame string) {
	t.mu.Lock()
	outbox := t.outbox
	open := t.state == stateOpen
	t.mu.Unlock()
	if !open {
		t.dropped.Add(1)
		return
	}

	for {
		select {
		case outbox <- frame:
			return
		default:
		}
		select {
		case <-outbox:
			t.dropped.Add(1)
		default:
		}
	}
}

// Close is idempotent and safe from any state. A pending Open is cancelled.
// The remote acknowledgement is awaited for at most CloseTimeout.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = stateClosed
	t.closed.Store(true)
	cancel, conn, done := t.cancel, t.conn, t.writerDone
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	<-done

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Close() }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(CloseTimeout):
		log.Warn("transport close timed out waiting for remote")
		return nil
	}
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateOpen
}

func (t *Transport) Stats() Stats {
	return Stats{
		Sent:      t.sent.Load(),
		Dropped:   t.dropped.Load(),
		Received:  t.received.Load(),
		ConnectMs: float64(t.connectMs.Load()),
	}
}
