package transport

import (
	"context"
	"sync"
)

// Fake is an in-memory Dialer. Setting Block makes Dial wait until the
// channel is closed or the context is cancelled.
type Fake struct {
	mu      sync.Mutex
	DialErr error
	Block   chan struct{}

	setups []Setup
	conns  []*FakeConn
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Dial(ctx context.Context, setup Setup, sink Sink) (Conn, error) {
	f.mu.Lock()
	f.setups = append(f.setups, setup)
	block, dialErr := f.Block, f.DialErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	c := &FakeConn{sink: sink}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *Fake) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setups)
}

func (f *Fake) LastSetup() Setup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.setups) == 0 {
		return Setup{}
	}
	return f.setups[len(f.setups)-1]
}

func (f *Fake) Conns() []*FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeConn(nil), f.conns...)
}

// Last returns the most recent connection or nil.
func (f *Fake) Last() *FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type FakeConn struct {
	sink Sink

	mu      sync.Mutex
	frames  []string
	closes  int
	SendErr error
}

func (c *FakeConn) Send(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

// Emit delivers ev as if the server had sent it.
func (c *FakeConn) Emit(ev Event) {
	c.sink(ev)
}

func (c *FakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

func (c *FakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
