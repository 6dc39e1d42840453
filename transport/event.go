package transport

import "fmt"

type EventType int

const (
	EventInputTranscript EventType = iota
	EventOutputTranscript
	EventAudio
	EventTurnComplete
	EventInterrupted
	EventError
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventAudio:
		return "audio"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one server-side occurrence. Audio holds raw PCM16 at 24 kHz. An
// EventAudio with Err set is a chunk whose payload could not be decoded.
type Event struct {
	Type   EventType
	Text   string
	Audio  []byte
	Err    error
	Code   int
	Reason string
}

type Sink func(Event)

// Setup is sent once when the connection opens and cannot change afterwards.
type Setup struct {
	Model             string
	Voice             string
	Language          string
	SystemInstruction string
}

// content is the provider-neutral shape of one serverContent message.
type content struct {
	input        string
	output       string
	audio        []audioPart
	interrupted  bool
	turnComplete bool
}

type audioPart struct {
	pcm []byte
	err error
}

// events orders a server message so that text always precedes the turn
// boundary it belongs to.
func (c content) events() []Event {
	var out []Event
	if c.input != "" {
		out = append(out, Event{Type: EventInputTranscript, Text: c.input})
	}
	if c.output != "" {
		out = append(out, Event{Type: EventOutputTranscript, Text: c.output})
	}
	for _, a := range c.audio {
		switch {
		case a.err != nil:
			out = append(out, Event{Type: EventAudio, Err: a.err})
		case len(a.pcm) > 0:
			out = append(out, Event{Type: EventAudio, Audio: a.pcm})
		}
	}
	if c.interrupted {
		out = append(out, Event{Type: EventInterrupted})
	}
	if c.turnComplete {
		out = append(out, Event{Type: EventTurnComplete})
	}
	return out
}
