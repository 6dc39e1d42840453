package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parla/beep"
	"parla/clipboard"
	"parla/config"
	"parla/log"
	"parla/session"
	"parla/transcript"
)

// controller is the session observer and the target of every user action,
// whichever surface (TUI, plain, hotkey) it came from.
type controller struct {
	sess *session.Session
	cfg  config.Session

	sinkMu sync.RWMutex
	sink   EventSink

	peak    levelPeak
	monitor *silenceMonitor
	hinted  bool

	// touched only from the session's notification goroutine
	last   session.Status
	errMsg string
}

func newController(cfg config.Session, autoClose time.Duration) *controller {
	return &controller{
		cfg:     cfg,
		sink:    nopSink{},
		monitor: newSilenceMonitor(autoClose),
	}
}

func (c *controller) attach(s *session.Session) { c.sess = s }

func (c *controller) setSink(s EventSink) {
	c.sinkMu.Lock()
	c.sink = s
	c.sinkMu.Unlock()
}

func (c *controller) out() EventSink {
	c.sinkMu.RLock()
	defer c.sinkMu.RUnlock()
	return c.sink
}

func (c *controller) StatusChanged(st session.Status) {
	prev := c.last
	c.last = st

	switch {
	case st == session.StatusListening && prev == session.StatusConnecting:
		beep.PlayConnect()
	case st == session.StatusIdle && prev.Active():
		beep.PlayEnd()
	case st == session.StatusError:
		beep.PlayError()
	}

	msg := ""
	if st == session.StatusError {
		msg = c.errMsg
	}
	if st == session.StatusConnecting {
		c.errMsg = ""
	}
	c.out().Status(st, msg)
}

func (c *controller) Partial(p transcript.Partial) { c.out().Partial(p) }
func (c *controller) Turn(t transcript.Turn)       { c.out().Turn(t) }
func (c *controller) Error(msg string)             { c.errMsg = msg }

func (c *controller) Level(rms float64) {
	c.peak.Observe(rms)
	c.out().Level(rms)
}

func (c *controller) Start() {
	if !c.sess.Start(c.cfg) {
		c.out().Notice("Conversazione già in corso.")
	}
}

func (c *controller) End() {
	c.sess.End()
}

func (c *controller) Toggle() {
	if c.sess.Status().Active() {
		c.End()
		return
	}
	c.Start()
}

func (c *controller) Copy() {
	n, err := clipboard.CopyTranscript(c.sess.Turns())
	switch {
	case err != nil:
		log.Warnf("clipboard copy: %v", err)
		c.out().Notice("Impossibile copiare la trascrizione: " + err.Error())
	case n == 0:
		c.out().Notice("Nessun turno da copiare.")
	default:
		c.out().Notice(fmt.Sprintf("Trascrizione copiata (%d turni).", n))
	}
}

// watchSilence runs the silence monitor until ctx is done.
func (c *controller) watchSilence(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.silenceTick()
		}
	}
}

func (c *controller) silenceTick() {
	speech := c.peak.Take() >= speechRMS
	if c.sess.Status() != session.StatusListening {
		c.monitor.Reset()
		c.hint("")
		return
	}

	switch c.monitor.Tick(speech) {
	case SilenceWarn:
		c.hint("Non ti sento: parla pure, oppure controlla il microfono.")
	case SilenceWarnClear:
		c.hint("")
	case SilenceAutoClose:
		log.Info("silence_autoclose")
		c.End()
		c.hint("")
		c.out().Notice("Conversazione chiusa dopo un lungo silenzio.")
	}
}

func (c *controller) hint(text string) {
	if text == "" && !c.hinted {
		return
	}
	c.hinted = text != ""
	c.out().Hint(text)
}
