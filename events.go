package main

import (
	"parla/session"
	"parla/transcript"
)

// EventSink abstracts the display layer so both the Bubble Tea TUI
// and plain terminal mode receive the same conversation events.
type EventSink interface {
	Status(status session.Status, message string)
	Partial(p transcript.Partial)
	Turn(t transcript.Turn)
	Level(rms float64)
	Hint(text string)
	Notice(text string)
}

type nopSink struct{}

func (nopSink) Status(session.Status, string) {}
func (nopSink) Partial(transcript.Partial)    {}
func (nopSink) Turn(transcript.Turn)          {}
func (nopSink) Level(float64)                 {}
func (nopSink) Hint(string)                   {}
func (nopSink) Notice(string)                 {}
