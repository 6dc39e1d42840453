package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerModel
	SpeakerSystem
)

func (s Speaker) String() string {
	switch s {
	case SpeakerUser:
		return "user"
	case SpeakerModel:
		return "model"
	case SpeakerSystem:
		return "system"
	}
	return fmt.Sprintf("Speaker(%d)", int(s))
}

// Label is the Italian display name used in formatted transcripts.
func (s Speaker) Label() string {
	switch s {
	case SpeakerUser:
		return "Tu"
	case SpeakerModel:
		return "Tutor"
	}
	return "Sistema"
}

// Turn is final once created and never modified.
type Turn struct {
	ID      string
	Speaker Speaker
	Text    string
	IsFinal bool
	At      time.Time
}

type Partial struct {
	User  string
	Model string
}

func (p Partial) Empty() bool { return p.User == "" && p.Model == "" }

// Assembler accumulates streamed transcription deltas and cuts them into
// turns at turn-complete boundaries.
type Assembler struct {
	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
	turns []Turn
	now   func() time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

func (a *Assembler) AppendInput(text string) Partial {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(text)
	return a.partialLocked()
}

func (a *Assembler) AppendOutput(text string) Partial {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model.WriteString(text)
	return a.partialLocked()
}

// Complete emits the pending user turn and then the pending model turn, and
// resets both partials.
func (a *Assembler) Complete() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Turn
	for _, p := range []struct {
		speaker Speaker
		buf     *strings.Builder
	}{
		{SpeakerUser, &a.user},
		{SpeakerModel, &a.model},
	} {
		text := p.buf.String()
		p.buf.Reset()
		if text == "" {
			continue
		}
		out = append(out, Turn{
			ID:      uuid.NewString(),
			Speaker: p.speaker,
			Text:    text,
			IsFinal: true,
			At:      a.now(),
		})
	}
	a.turns = append(a.turns, out...)
	return out
}

// Flush is Complete for a session that ends mid-turn.
func (a *Assembler) Flush() []Turn {
	return a.Complete()
}

func (a *Assembler) Partial() Partial {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partialLocked()
}

func (a *Assembler) partialLocked() Partial {
	return Partial{User: a.user.String(), Model: a.model.String()}
}

func (a *Assembler) Turns() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Turn(nil), a.turns...)
}

func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
	a.turns = nil
}

// Format renders turns as "Label: text" lines.
func Format(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker.Label(), strings.TrimSpace(t.Text))
	}
	return b.String()
}
