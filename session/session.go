package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"parla/audio"
	"parla/capture"
	"parla/codec"
	"parla/config"
	"parla/log"
	"parla/playback"
	"parla/transcript"
	"parla/transport"
)

type Options struct {
	Dialer   transport.Dialer
	Audio    audio.Context
	Device   *audio.DeviceInfo
	Observer Observer

	// Setup carries model, voice and language. The system instruction is
	// filled in from the session config on every Start.
	Setup          transport.Setup
	TransportName  string
	CaptureOptions []capture.Option
}

// Session runs one live conversation at a time. It is the only writer of
// its status; every asynchronous result carries the epoch it was started
// under and is discarded once the epoch has moved on.
type Session struct {
	opts   Options
	obs    Observer
	notify *mailbox
	status atomic.Int32
	wg     sync.WaitGroup

	mu      sync.Mutex
	epoch   uint64
	id      string
	config  config.Session
	message string
	asm     *transcript.Assembler
	res     resources
	started time.Time

	audioChunks  int
	audioDur     time.Duration
	decodeErrors int
}

// resources is everything one epoch acquires.
type resources struct {
	cancel  context.CancelFunc
	tr      *transport.Transport
	sched   *playback.Scheduler
	player  audio.PlaybackDevice
	capture *capture.Handle
}

func New(opts Options) *Session {
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	return &Session{
		opts:   opts,
		obs:    obs,
		notify: newMailbox(),
		asm:    transcript.NewAssembler(),
	}
}

// Status is safe to call from any goroutine, including observers.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Config() config.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Session) Turns() []transcript.Turn {
	return s.asm.Turns()
}

func (s *Session) Partial() transcript.Partial {
	return s.asm.Partial()
}

// Start begins a new conversation and returns immediately. It does nothing
// and returns false unless the session is idle or in error.
func (s *Session) Start(cfg config.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st != StatusIdle && st != StatusError {
		return false
	}

	s.epoch++
	ep := s.epoch
	s.id = uuid.NewString()
	s.config = cfg
	s.message = ""
	s.started = time.Now()
	s.audioChunks, s.audioDur, s.decodeErrors = 0, 0, 0
	s.asm.Reset()

	log.SessionStart(s.id, string(cfg.Level), string(cfg.Register), s.opts.TransportName)
	if err := cfg.Validate(); err != nil {
		s.failLocked(fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := playback.NewScheduler(codec.PlaybackSampleRate)
	sched.OnDrained(func() { s.onDrained(ep) })
	s.res = resources{
		cancel: cancel,
		tr:     transport.New(s.opts.Dialer),
		sched:  sched,
	}

	s.setStatusLocked(StatusConnecting)

	go s.connect(ctx, ep, s.res.tr, sched, cfg)
	return true
}

func (s *Session) connect(ctx context.Context, ep uint64, tr *transport.Transport, sched *playback.Scheduler, cfg config.Session) {
	setup := s.opts.Setup
	setup.SystemInstruction = cfg.Instruction()

	if err := tr.Open(ctx, setup, func(ev transport.Event) { s.handleEvent(ep, ev) }); err != nil {
		s.fail(ep, err)
		return
	}

	player, err := s.opts.Audio.NewPlayback(audio.PlaybackConfig{SampleRate: codec.PlaybackSampleRate, Channels: codec.Channels})
	if err != nil {
		s.fail(ep, audio.Classify(err))
		return
	}
	player.SetRenderer(sched.Render)
	if err := player.Start(); err != nil {
		player.Close()
		s.fail(ep, err)
		return
	}
	if !s.attach(ep, func(r *resources) { r.player = player }) {
		player.Close()
		return
	}

	dev, err := s.opts.Audio.NewCapture(s.opts.Device, audio.CaptureConfig{SampleRate: codec.CaptureSampleRate, Channels: codec.Channels})
	if err != nil {
		s.fail(ep, audio.Classify(err))
		return
	}

	// The microphone goes live in the same critical section that moves the
	// status to Listening, and never for an epoch that has moved on.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep || s.Status() != StatusConnecting {
		dev.Close()
		return
	}
	opts := append([]capture.Option{capture.WithLevel(s.level)}, s.opts.CaptureOptions...)
	h, err := capture.Start(ctx, dev, tr, opts...)
	if err != nil {
		s.failLocked(err)
		return
	}
	s.res.capture = h
	log.Infof("capture started on %s", h.DeviceName())
	s.setStatusLocked(StatusListening)
}

// attach stores a freshly acquired resource if ep is still current.
func (s *Session) attach(ep uint64, fn func(*resources)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep || s.Status() != StatusConnecting {
		return false
	}
	fn(&s.res)
	return true
}

func (s *Session) level(rms float64) {
	s.notify.push(func() { s.obs.Level(rms) })
}

func (s *Session) handleEvent(ep uint64, ev transport.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep {
		return
	}

	switch ev.Type {
	case transport.EventInputTranscript:
		s.pushPartial(s.asm.AppendInput(ev.Text))

	case transport.EventOutputTranscript:
		s.pushPartial(s.asm.AppendOutput(ev.Text))

	case transport.EventTurnComplete:
		s.pushTurns(s.asm.Complete())
		s.pushPartial(transcript.Partial{})

	case transport.EventAudio:
		err := ev.Err
		var buf *codec.Buffer
		if err == nil {
			buf, err = codec.DecodeAudioChunk(ev.Audio, codec.PlaybackSampleRate, codec.Channels)
		}
		if err != nil {
			s.decodeErrors++
			log.Warnf("dropping audio chunk: %v", err)
			return
		}
		h := s.res.sched.Schedule(buf)
		s.audioChunks++
		s.audioDur += h.Duration
		if h.Duration > 0 && s.Status() == StatusListening {
			s.setStatusLocked(StatusSpeaking)
		}

	case transport.EventInterrupted:
		s.res.sched.StopAll()
		if s.Status() == StatusSpeaking {
			s.setStatusLocked(StatusListening)
		}

	case transport.EventError:
		err := ev.Err
		if err == nil {
			err = &transport.ConnectionError{Op: "remote", Code: ev.Code, Reason: ev.Reason}
		}
		s.failLocked(err)

	case transport.EventClose:
		log.Infof("remote closed connection: code=%d reason=%q", ev.Code, ev.Reason)
		s.shutdownLocked(StatusIdle)
	}
}

func (s *Session) onDrained(ep uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep || s.Status() != StatusSpeaking {
		return
	}
	s.setStatusLocked(StatusListening)
}

func (s *Session) fail(ep uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep {
		return
	}
	s.failLocked(err)
}

func (s *Session) failLocked(err error) {
	msg := UserMessage(err)
	log.Errorf("session %s: %v", s.id, err)
	s.message = msg
	s.notify.push(func() { s.obs.Error(msg) })
	s.shutdownLocked(StatusError)
}

// End stops the conversation. The status changes before End returns;
// device and network teardown may finish later, see Wait. An ERROR status
// is left in place.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked(StatusIdle)
}

// shutdownLocked moves to final, flushes partial text into turns,
// invalidates the epoch and releases the epoch's resources. Idle never
// replaces Error.
func (s *Session) shutdownLocked(final Status) {
	if !s.Status().Active() && final == StatusIdle {
		return
	}

	s.pushTurns(s.asm.Flush())
	s.pushPartial(transcript.Partial{})
	s.epoch++

	res := s.res
	s.res = resources{}
	s.logMetrics(res)
	s.setStatusLocked(final)
	log.SessionEnd(s.id, len(s.asm.Turns()), final.String())

	s.release(res)
}

// release stops playback at once and tears the rest down in the
// background. Device shutdown can wait on an audio callback that needs
// s.mu, so it never runs under the lock.
func (s *Session) release(res resources) {
	if res.cancel != nil {
		res.cancel()
	}
	if res.sched != nil {
		res.sched.StopAll()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res.capture.Stop()
		if res.player != nil {
			res.player.Close()
		}
		if res.tr != nil {
			if err := res.tr.Close(); err != nil {
				log.Warnf("closing transport: %v", err)
			}
		}
	}()
}

func (s *Session) logMetrics(res resources) {
	if res.tr == nil {
		return
	}
	ts := res.tr.Stats()
	cs := res.capture.Stats()
	log.StreamMetrics(s.id, log.StreamMetricsData{
		ConnectMs:      ts.ConnectMs,
		DurationS:      time.Since(s.started).Seconds(),
		FramesSent:     ts.Sent,
		FramesDropped:  ts.Dropped + cs.Dropped,
		EventsReceived: ts.Received,
		AudioChunks:    s.audioChunks,
		AudioS:         s.audioDur.Seconds(),
		DecodeErrors:   s.decodeErrors,
	})
}

func (s *Session) setStatusLocked(next Status) {
	prev := Status(s.status.Swap(int32(next)))
	if prev == next {
		return
	}
	log.StatusChange(s.id, prev.String(), next.String())
	s.notify.push(func() { s.obs.StatusChanged(next) })
}

func (s *Session) pushPartial(p transcript.Partial) {
	s.notify.push(func() { s.obs.Partial(p) })
}

func (s *Session) pushTurns(turns []transcript.Turn) {
	for _, t := range turns {
		log.TurnText(t.Speaker.String(), t.Text)
		s.notify.push(func() { s.obs.Turn(t) })
	}
}

// Wait blocks until background teardown of ended conversations is done.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close ends any conversation, waits for teardown and delivers the
// remaining notifications. The session cannot be used afterwards.
func (s *Session) Close() {
	s.End()
	s.Wait()
	s.notify.close()
}
