package session

import "fmt"

type Status int32

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusListening
	StatusSpeaking
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusListening:
		return "LISTENING"
	case StatusSpeaking:
		return "SPEAKING"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Label is the Italian text shown next to the status indicator.
func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "Pronto"
	case StatusConnecting:
		return "Connessione…"
	case StatusListening:
		return "In ascolto"
	case StatusSpeaking:
		return "Il tutor parla"
	case StatusError:
		return "Errore"
	}
	return s.String()
}

// Active reports whether a connection is being opened or is in use.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusListening || s == StatusSpeaking
}
