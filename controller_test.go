package main

import (
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"parla/audio"
	"parla/beep"
	"parla/config"
	"parla/session"
	"parla/transcript"
	"parla/transport"
)

func TestMain(m *testing.M) {
	beep.Disable()
	os.Exit(m.Run())
}

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

type sinkLog struct {
	mu       sync.Mutex
	statuses []session.Status
	messages []string
	turns    []transcript.Turn
	hints    []string
	notices  []string
}

func (s *sinkLog) Status(st session.Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
	s.messages = append(s.messages, msg)
}

func (s *sinkLog) Partial(transcript.Partial) {}

func (s *sinkLog) Turn(t transcript.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

func (s *sinkLog) Level(float64) {}

func (s *sinkLog) Hint(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints = append(s.hints, text)
}

func (s *sinkLog) Notice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
}

func (s *sinkLog) Hints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.hints)
}

func (s *sinkLog) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notices)
}

func (s *sinkLog) LastStatus() (session.Status, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return 0, "", false
	}
	return s.statuses[len(s.statuses)-1], s.messages[len(s.messages)-1], true
}

func newTestController(t *testing.T, autoClose time.Duration) (*controller, *transport.Fake, *sinkLog) {
	t.Helper()
	dial := transport.NewFake()
	ctrl := newController(config.DefaultSession(), autoClose)
	sink := &sinkLog{}
	ctrl.setSink(sink)
	sess := session.New(session.Options{
		Dialer:   dial,
		Audio:    audio.NewFakeContext(nil, 0),
		Observer: ctrl,
	})
	ctrl.attach(sess)
	t.Cleanup(sess.Close)
	return ctrl, dial, sink
}

func listening(t *testing.T, ctrl *controller) {
	t.Helper()
	waitFor(t, "listening", func() bool { return ctrl.sess.Status() == session.StatusListening })
}

func TestControllerToggle(t *testing.T) {
	ctrl, dial, sink := newTestController(t, 0)

	ctrl.Toggle()
	listening(t, ctrl)
	ctrl.Toggle()
	if st := ctrl.sess.Status(); st != session.StatusIdle {
		t.Fatalf("status = %v, want IDLE", st)
	}
	waitFor(t, "idle reported", func() bool {
		st, _, ok := sink.LastStatus()
		return ok && st == session.StatusIdle
	})
	if dial.Dials() != 1 {
		t.Errorf("dials = %d, want 1", dial.Dials())
	}
}

func TestControllerStartTwice(t *testing.T) {
	ctrl, _, sink := newTestController(t, 0)
	ctrl.Start()
	listening(t, ctrl)
	ctrl.Start()
	if n := sink.Notices(); len(n) != 1 || !strings.Contains(n[0], "già in corso") {
		t.Errorf("notices = %q", n)
	}
}

func TestControllerErrorMessage(t *testing.T) {
	ctrl, dial, sink := newTestController(t, 0)
	dial.DialErr = &transport.ConnectionError{Op: "setup", Code: 1008, Reason: "API key not valid"}

	ctrl.Start()
	waitFor(t, "error reported", func() bool {
		st, _, ok := sink.LastStatus()
		return ok && st == session.StatusError
	})
	_, msg, _ := sink.LastStatus()
	if !strings.Contains(msg, "API key not valid") {
		t.Errorf("message = %q", msg)
	}
}

func TestSilenceHint(t *testing.T) {
	ctrl, _, sink := newTestController(t, 0)
	ctrl.Start()
	listening(t, ctrl)

	for range 80 {
		ctrl.silenceTick()
	}
	hints := sink.Hints()
	if len(hints) != 1 || !strings.Contains(hints[0], "Non ti sento") {
		t.Fatalf("hints = %q", hints)
	}

	for range 80 {
		ctrl.peak.Observe(0.2)
		ctrl.silenceTick()
		if h := sink.Hints(); len(h) == 2 {
			if h[1] != "" {
				t.Fatalf("second hint = %q, want clear", h[1])
			}
			return
		}
	}
	t.Fatal("hint never cleared after speech")
}

func TestSilenceIgnoredWhileSpeaking(t *testing.T) {
	ctrl, dial, sink := newTestController(t, 0)
	ctrl.Start()
	listening(t, ctrl)
	dial.Last().Emit(transport.Event{Type: transport.EventAudio, Audio: make([]byte, 48000)})
	if st := ctrl.sess.Status(); st != session.StatusSpeaking {
		t.Fatalf("status = %v, want SPEAKING", st)
	}

	for range 200 {
		ctrl.silenceTick()
	}
	if h := sink.Hints(); len(h) != 0 {
		t.Errorf("hints while speaking = %q", h)
	}
}

func TestSilenceAutoClose(t *testing.T) {
	ctrl, _, sink := newTestController(t, 10*time.Second)
	ctrl.Start()
	listening(t, ctrl)

	for range 100 {
		ctrl.silenceTick()
		if ctrl.sess.Status() == session.StatusIdle {
			break
		}
	}
	if st := ctrl.sess.Status(); st != session.StatusIdle {
		t.Fatalf("status = %v, want IDLE", st)
	}
	n := sink.Notices()
	if len(n) != 1 || !strings.Contains(n[0], "silenzio") {
		t.Errorf("notices = %q", n)
	}
}

func TestCopyWithoutTurns(t *testing.T) {
	ctrl, _, sink := newTestController(t, 0)
	ctrl.Copy()
	if n := sink.Notices(); len(n) != 1 || !strings.Contains(n[0], "Nessun turno") {
		t.Errorf("notices = %q", n)
	}
}
