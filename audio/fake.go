package audio

import (
	"sync"
	"time"
)

// FakeContext hands out in-memory devices. With a zero Interval the capture
// device never feeds itself; tests push samples through FakeCapture.Feed.
type FakeContext struct {
	Samples  []float32
	Chunk    int
	Interval time.Duration

	CaptureErr  error
	StartErr    error
	PlaybackErr error

	mu        sync.Mutex
	captures  []*FakeCapture
	playbacks []*FakePlayback
	closed    bool
}

func NewFakeContext(samples []float32, interval time.Duration) *FakeContext {
	return &FakeContext{Samples: samples, Chunk: 1024, Interval: interval}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake microphone"}}, nil
}

func (f *FakeContext) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	name := "fake"
	if device != nil {
		name = device.Name
	}
	c := &FakeCapture{
		name:     name,
		samples:  f.Samples,
		chunk:    max(f.Chunk, 1),
		interval: f.Interval,
		startErr: f.StartErr,
	}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) NewPlayback(_ PlaybackConfig) (PlaybackDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlaybackErr != nil {
		return nil, f.PlaybackErr
	}
	p := &FakePlayback{}
	f.playbacks = append(f.playbacks, p)
	return p, nil
}

func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

func (f *FakeContext) Playbacks() []*FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePlayback(nil), f.playbacks...)
}

type FakeCapture struct {
	name     string
	samples  []float32
	chunk    int
	interval time.Duration
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	running  bool
	closed   bool
	starts   int
	stops    int
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return f.name }

// Feed delivers samples to the callback synchronously, as a device thread would.
func (f *FakeCapture) Feed(samples []float32) {
	f.mu.Lock()
	cb := f.cb
	running := f.running
	f.mu.Unlock()
	if cb != nil && running {
		cb(samples)
	}
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return nil
	}
	f.running = true
	f.starts++
	if f.interval <= 0 {
		return nil
	}

	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	go f.loop(f.stopCh, f.feedDone)
	return nil
}

func (f *FakeCapture) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	silence := make([]float32, f.chunk)
	pos := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		f.mu.Lock()
		cb := f.cb
		f.mu.Unlock()
		if cb == nil {
			continue
		}
		if pos < len(f.samples) {
			end := min(pos+f.chunk, len(f.samples))
			cb(f.samples[pos:end])
			pos = end
		} else {
			cb(silence)
		}
	}
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.stops++
	stop, done := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Starts counts successful Start calls.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakePlayback only renders when Pull is called.
type FakePlayback struct {
	mu       sync.Mutex
	renderer RenderFunc
	running  bool
	closed   bool
}

func (p *FakePlayback) Start() error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	return nil
}

func (p *FakePlayback) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *FakePlayback) Close() {
	p.mu.Lock()
	p.running = false
	p.closed = true
	p.mu.Unlock()
}

func (p *FakePlayback) SetRenderer(fn RenderFunc) {
	p.mu.Lock()
	p.renderer = fn
	p.mu.Unlock()
}

// Pull renders n samples through the installed renderer.
func (p *FakePlayback) Pull(n int) []float32 {
	p.mu.Lock()
	fn := p.renderer
	p.mu.Unlock()
	out := make([]float32, n)
	if fn != nil {
		fn(out)
	}
	return out
}

func (p *FakePlayback) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
