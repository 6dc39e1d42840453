package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"parla/audio"
	"parla/codec"
	"parla/log"
)

// QueueSize bounds the frames waiting for the sender, about two seconds of
// audio at 16 kHz.
const QueueSize = 8

type Sink interface {
	SendAudio(frame string)
}

type SinkFunc func(frame string)

func (f SinkFunc) SendAudio(frame string) { f(frame) }

type Option func(*options)

type options struct {
	queueSize int
	frameSize int
	level     func(rms float64)
	tap       func(pcm []int16)
}

// WithLevel reports the RMS of every device callback. fn runs on the device
// thread.
func WithLevel(fn func(rms float64)) Option {
	return func(o *options) { o.level = fn }
}

// WithTap receives each PCM16 frame before it is encoded.
func WithTap(fn func(pcm []int16)) Option {
	return func(o *options) { o.tap = fn }
}

func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

func WithFrameSize(n int) Option {
	return func(o *options) { o.frameSize = n }
}

type Stats struct {
	Sent    int64
	Dropped int64
}

type Handle struct {
	dev  audio.CaptureDevice
	sink Sink
	opts options

	pending []float32 // device thread only
	queue   *frameQueue

	sent    atomic.Int64
	dropped atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Start wires dev to sink and starts the device. Start owns dev from the
// moment it is called: on any error the device has been closed. Cancelling
// ctx stops the handle as if Stop had been called.
func Start(ctx context.Context, dev audio.CaptureDevice, sink Sink, opts ...Option) (*Handle, error) {
	o := options{queueSize: QueueSize, frameSize: codec.FrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		dev.Close()
		return nil, err
	}

	h := &Handle{
		dev:     dev,
		sink:    sink,
		opts:    o,
		pending: make([]float32, 0, o.frameSize),
		queue:   newFrameQueue(o.queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	dev.SetCallback(h.onSamples)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("starting capture on %s: %w", dev.DeviceName(), audio.Classify(err))
	}

	go h.run(ctx)
	return h, nil
}

func (h *Handle) onSamples(samples []float32) {
	if h.opts.level != nil {
		h.opts.level(rms(samples))
	}
	for len(samples) > 0 {
		n := min(h.opts.frameSize-len(h.pending), len(samples))
		h.pending = append(h.pending, samples[:n]...)
		samples = samples[n:]
		if len(h.pending) == h.opts.frameSize {
			if h.queue.push(codec.FloatToPCM16(h.pending)) {
				h.dropped.Add(1)
			}
			h.pending = h.pending[:0]
		}
	}
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			go h.Stop()
			return
		case <-h.queue.ready:
		}
		for _, pcm := range h.queue.drain() {
			if h.opts.tap != nil {
				h.opts.tap(pcm)
			}
			h.sink.SendAudio(codec.EncodeFrame(pcm))
			h.sent.Add(1)
		}
	}
}

// Stop detaches the callback, releases the device and waits for the sender.
// It is safe to call more than once and on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		h.dev.ClearCallback()
		h.dev.Stop()
		h.dev.Close()
		close(h.stop)
		<-h.done
		if h.dropped.Load() > 0 {
			log.Warnf("capture dropped %d frames", h.dropped.Load())
		}
	})
}

func (h *Handle) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

func (h *Handle) DeviceName() string {
	if h == nil {
		return ""
	}
	return h.dev.DeviceName()
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
