package session

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"parla/audio"
	"parla/codec"
	"parla/config"
	"parla/transcript"
	"parla/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	turns    []transcript.Turn
	partials []transcript.Partial
	errors   []string
}

func (r *recorder) StatusChanged(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) Partial(p transcript.Partial) {
	r.mu.Lock()
	r.partials = append(r.partials, p)
	r.mu.Unlock()
}

func (r *recorder) Turn(t transcript.Turn) {
	r.mu.Lock()
	r.turns = append(r.turns, t)
	r.mu.Unlock()
}

func (r *recorder) Error(msg string) {
	r.mu.Lock()
	r.errors = append(r.errors, msg)
	r.mu.Unlock()
}

func (r *recorder) Level(float64) {}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statuses)
}

func (r *recorder) Turns() []transcript.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.turns)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errors)
}

type harness struct {
	s    *Session
	dial *transport.Fake
	dev  *audio.FakeContext
	obs  *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dial: transport.NewFake(),
		dev:  audio.NewFakeContext(nil, 0),
		obs:  &recorder{},
	}
	h.s = New(Options{
		Dialer:   h.dial,
		Audio:    h.dev,
		Observer: h.obs,
		Setup:    transport.Setup{Model: "test-model", Voice: "Zephyr", Language: "it-IT"},
	})
	t.Cleanup(h.s.Close)
	return h
}

// listening starts a conversation and waits until the microphone is live.
func (h *harness) listening(t *testing.T) *transport.FakeConn {
	t.Helper()
	if !h.s.Start(config.DefaultSession()) {
		t.Fatal("Start returned false")
	}
	waitFor(t, "listening", func() bool { return h.s.Status() == StatusListening })
	conn := h.dial.Last()
	if conn == nil {
		t.Fatal("no connection dialed")
	}
	return conn
}

func (h *harness) emit(conn *transport.FakeConn, ev transport.Event) {
	conn.Emit(ev)
}

func speech(samples int) []byte {
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = 1000
	}
	return codec.PCM16Bytes(pcm)
}

func TestStartStreamsMicrophone(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	if got := h.dial.LastSetup().SystemInstruction; !strings.Contains(got, "B1") {
		t.Errorf("system instruction does not mention the level: %q", got)
	}

	caps := h.dev.Captures()
	if len(caps) != 1 {
		t.Fatalf("captures = %d, want 1", len(caps))
	}
	caps[0].Feed(make([]float32, codec.FrameSize))
	waitFor(t, "frame sent", func() bool { return len(conn.Frames()) == 1 })

	pcm, err := codec.DecodeFrame(conn.Frames()[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != codec.FrameSize {
		t.Errorf("frame has %d samples, want %d", len(pcm), codec.FrameSize)
	}
	if h.s.ID() == "" {
		t.Error("session id is empty")
	}
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t)
	h.listening(t)

	if h.s.Start(config.DefaultSession()) {
		t.Error("Start while listening returned true")
	}
	if h.dial.Dials() != 1 {
		t.Errorf("dials = %d, want 1", h.dial.Dials())
	}
}

func TestSpeakingUntilPlaybackDrains(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: speech(2400)})
	if st := h.s.Status(); st != StatusSpeaking {
		t.Fatalf("status = %v, want SPEAKING", st)
	}

	player := h.dev.Playbacks()[0]
	out := player.Pull(1200)
	if out[0] == 0 {
		t.Error("first rendered sample is silent")
	}
	if st := h.s.Status(); st != StatusSpeaking {
		t.Fatalf("status after half = %v, want SPEAKING", st)
	}
	player.Pull(1200)
	if st := h.s.Status(); st != StatusListening {
		t.Fatalf("status after drain = %v, want LISTENING", st)
	}
}

func TestEmptyAudioChunkKeepsListening(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: nil})
	if st := h.s.Status(); st != StatusListening {
		t.Errorf("status = %v, want LISTENING", st)
	}
}

func TestDecodeErrorDropsChunk(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: []byte{1, 2, 3}})
	h.emit(conn, transport.Event{Type: transport.EventAudio, Err: &codec.DecodeError{Reason: "invalid base64"}})
	if st := h.s.Status(); st != StatusListening {
		t.Errorf("status = %v, want LISTENING", st)
	}
	if h.s.Message() != "" {
		t.Errorf("message = %q, want empty", h.s.Message())
	}

	h.s.mu.Lock()
	decodeErrors, chunks := h.s.decodeErrors, h.s.audioChunks
	h.s.mu.Unlock()
	if decodeErrors != 2 || chunks != 0 {
		t.Errorf("decode errors = %d, chunks = %d; want 2 and 0", decodeErrors, chunks)
	}
}

func TestInterruptedStopsPlayback(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: speech(24000)})
	h.emit(conn, transport.Event{Type: transport.EventInterrupted})
	if st := h.s.Status(); st != StatusListening {
		t.Fatalf("status = %v, want LISTENING", st)
	}
	out := h.dev.Playbacks()[0].Pull(256)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v after interruption, want silence", i, v)
		}
	}
}

func TestTurnsInOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	for _, ev := range []transport.Event{
		{Type: transport.EventInputTranscript, Text: "Ciao, "},
		{Type: transport.EventInputTranscript, Text: "come stai?"},
		{Type: transport.EventOutputTranscript, Text: "Bene, grazie!"},
		{Type: transport.EventTurnComplete},
		{Type: transport.EventOutputTranscript, Text: "E tu?"},
		{Type: transport.EventTurnComplete},
	} {
		h.emit(conn, ev)
	}

	want := []struct {
		speaker transcript.Speaker
		text    string
	}{
		{transcript.SpeakerUser, "Ciao, come stai?"},
		{transcript.SpeakerModel, "Bene, grazie!"},
		{transcript.SpeakerModel, "E tu?"},
	}
	turns := h.s.Turns()
	if len(turns) != len(want) {
		t.Fatalf("got %d turns, want %d", len(turns), len(want))
	}
	for i, w := range want {
		if turns[i].Speaker != w.speaker || turns[i].Text != w.text {
			t.Errorf("turn %d = %v %q, want %v %q", i, turns[i].Speaker, turns[i].Text, w.speaker, w.text)
		}
		if !turns[i].IsFinal {
			t.Errorf("turn %d not final", i)
		}
	}
	if !h.s.Partial().Empty() {
		t.Errorf("partial = %+v, want empty", h.s.Partial())
	}
	waitFor(t, "observer turns", func() bool { return len(h.obs.Turns()) == 3 })
}

func TestEndFlushesPartialText(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventOutputTranscript, Text: "Bene "})
	h.emit(conn, transport.Event{Type: transport.EventOutputTranscript, Text: "grazie"})
	h.s.End()

	turns := h.s.Turns()
	if len(turns) != 1 || turns[0].Text != "Bene grazie" {
		t.Fatalf("turns = %+v, want one model turn %q", turns, "Bene grazie")
	}
}

func TestEndReleasesEverything(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.s.End()
	if st := h.s.Status(); st != StatusIdle {
		t.Fatalf("status = %v, want IDLE", st)
	}
	h.s.Wait()

	if !conn.Closed() {
		t.Error("connection not closed")
	}
	if c := h.dev.Captures()[0]; c.Running() || !c.Closed() {
		t.Error("capture device still open")
	}
	if !h.dev.Playbacks()[0].Closed() {
		t.Error("playback device still open")
	}

	h.s.End()
	h.s.Wait()
	if conn.Closes() != 1 {
		t.Errorf("connection closed %d times, want 1", conn.Closes())
	}
}

func TestEventsAfterEndIgnored(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)
	h.s.End()

	h.emit(conn, transport.Event{Type: transport.EventOutputTranscript, Text: "tardi"})
	h.emit(conn, transport.Event{Type: transport.EventTurnComplete})
	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: speech(2400)})

	if st := h.s.Status(); st != StatusIdle {
		t.Errorf("status = %v, want IDLE", st)
	}
	if n := len(h.s.Turns()); n != 0 {
		t.Errorf("turns = %d, want 0", n)
	}
}

func TestRemoteErrorThenClose(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{
		Type: transport.EventError,
		Err:  &transport.ConnectionError{Op: "read", Code: 1011, Reason: "internal error"},
	})
	h.emit(conn, transport.Event{Type: transport.EventClose, Code: 1011})

	if st := h.s.Status(); st != StatusError {
		t.Fatalf("status = %v, want ERROR", st)
	}
	if msg := h.s.Message(); !strings.Contains(msg, "internal error") {
		t.Errorf("message = %q", msg)
	}
	waitFor(t, "error notified", func() bool { return len(h.obs.Errors()) == 1 })

	if !h.s.Start(config.DefaultSession()) {
		t.Fatal("restart from ERROR returned false")
	}
	waitFor(t, "listening again", func() bool { return h.s.Status() == StatusListening })
	if h.s.Message() != "" {
		t.Errorf("message not cleared: %q", h.s.Message())
	}
	if h.dial.Dials() != 2 {
		t.Errorf("dials = %d, want 2", h.dial.Dials())
	}
}

func TestRemoteCloseReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{Type: transport.EventClose, Code: 1000})
	if st := h.s.Status(); st != StatusIdle {
		t.Errorf("status = %v, want IDLE", st)
	}
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.dev.CaptureErr = audio.ErrPermissionDenied

	h.s.Start(config.DefaultSession())
	waitFor(t, "error", func() bool { return h.s.Status() == StatusError })

	if msg := h.s.Message(); !strings.Contains(msg, "microfono") {
		t.Errorf("message = %q", msg)
	}
	h.s.Wait()
	if conn := h.dial.Last(); conn == nil || !conn.Closed() {
		t.Error("connection not closed after capture failure")
	}
}

func TestDialFailure(t *testing.T) {
	h := newHarness(t)
	h.dial.DialErr = &transport.ConnectionError{Op: "setup", Code: 1008, Reason: "API key not valid"}

	h.s.Start(config.DefaultSession())
	waitFor(t, "error", func() bool { return h.s.Status() == StatusError })

	if msg := h.s.Message(); !strings.Contains(msg, "API key not valid") {
		t.Errorf("message = %q", msg)
	}
	if n := len(h.dev.Captures()); n != 0 {
		t.Errorf("captures = %d, want 0", n)
	}
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t)
	cfg := config.DefaultSession()
	cfg.Level = "Z9"

	h.s.Start(cfg)
	if st := h.s.Status(); st != StatusError {
		t.Fatalf("status = %v, want ERROR", st)
	}
	if h.dial.Dials() != 0 {
		t.Errorf("dials = %d, want 0", h.dial.Dials())
	}
	if msg := h.s.Message(); !strings.HasPrefix(msg, "Configurazione") {
		t.Errorf("message = %q", msg)
	}
}

func TestEndDuringDialDiscardsConnection(t *testing.T) {
	h := newHarness(t)
	h.dial.Block = make(chan struct{})

	h.s.Start(config.DefaultSession())
	waitFor(t, "dial", func() bool { return h.dial.Dials() == 1 })
	h.s.End()
	h.s.Wait()

	if st := h.s.Status(); st != StatusIdle {
		t.Errorf("status = %v, want IDLE", st)
	}
	if n := len(h.dev.Captures()); n != 0 {
		t.Errorf("captures = %d, want 0", n)
	}
	if h.s.Message() != "" {
		t.Errorf("message = %q, want empty", h.s.Message())
	}
}

func TestObserverSeesOrderedStatuses(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)
	h.emit(conn, transport.Event{Type: transport.EventAudio, Audio: speech(240)})
	h.dev.Playbacks()[0].Pull(240)
	h.s.End()

	want := []Status{StatusConnecting, StatusListening, StatusSpeaking, StatusListening, StatusIdle}
	waitFor(t, "statuses", func() bool { return len(h.obs.Statuses()) == len(want) })
	if got := h.obs.Statuses(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"permission", audio.ErrPermissionDenied, "Accesso al microfono negato"},
		{"device", audio.ErrDeviceUnavailable, "Nessun microfono"},
		{"key", transport.ErrMissingAPIKey, "GEMINI_API_KEY"},
		{"connection", &transport.ConnectionError{Op: "read", Reason: "boom"}, "Errore di connessione"},
		{"other", errors.New("boh"), "boh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserMessage(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("UserMessage(nil) = %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("UserMessage() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

// acquireHook runs fn after each capture device is created and before the
// session gets it back.
type acquireHook struct {
	*audio.FakeContext
	fn func()
}

func (a *acquireHook) NewCapture(d *audio.DeviceInfo, c audio.CaptureConfig) (audio.CaptureDevice, error) {
	dev, err := a.FakeContext.NewCapture(d, c)
	if err == nil {
		a.fn()
	}
	return dev, err
}

func TestEndDuringMicrophoneAcquisition(t *testing.T) {
	fake := audio.NewFakeContext(nil, 0)
	dial := transport.NewFake()
	obs := &recorder{}
	var s *Session
	s = New(Options{
		Dialer:   dial,
		Audio:    &acquireHook{FakeContext: fake, fn: func() { s.End() }},
		Observer: obs,
	})
	t.Cleanup(s.Close)

	if !s.Start(config.DefaultSession()) {
		t.Fatal("Start returned false")
	}
	waitFor(t, "microphone acquired", func() bool { return len(fake.Captures()) == 1 })
	mic := fake.Captures()[0]
	waitFor(t, "microphone released", mic.Closed)
	s.Wait()

	if mic.Starts() != 0 {
		t.Errorf("microphone started %d times for an ended conversation", mic.Starts())
	}
	if st := s.Status(); st != StatusIdle {
		t.Errorf("status = %v, want IDLE", st)
	}
	if c := dial.Last(); c == nil || !c.Closed() {
		t.Error("connection not closed")
	}
	if slices.Contains(obs.Statuses(), StatusListening) {
		t.Errorf("statuses = %v, should never reach LISTENING", obs.Statuses())
	}
}

func TestEndKeepsError(t *testing.T) {
	h := newHarness(t)
	conn := h.listening(t)

	h.emit(conn, transport.Event{
		Type: transport.EventError,
		Err:  &transport.ConnectionError{Op: "read", Code: 1008, Reason: "quota exceeded"},
	})
	msg := h.s.Message()
	if !strings.Contains(msg, "quota exceeded") {
		t.Fatalf("message = %q", msg)
	}

	h.s.End()
	h.s.End()
	h.s.Close()

	if st := h.s.Status(); st != StatusError {
		t.Errorf("status = %v, want ERROR", st)
	}
	if got := h.s.Message(); got != msg {
		t.Errorf("message = %q, want %q", got, msg)
	}
	if slices.Contains(h.obs.Statuses(), StatusIdle) {
		t.Errorf("statuses = %v, ERROR was replaced by IDLE", h.obs.Statuses())
	}
	if n := len(h.obs.Errors()); n != 1 {
		t.Errorf("errors notified %d times, want 1", n)
	}
}
