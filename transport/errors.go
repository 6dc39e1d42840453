package transport

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyOpen   = errors.New("transport: connection already open")
	ErrNotOpen       = errors.New("transport: not open")
	ErrClosed        = errors.New("transport: closed")
	ErrMissingAPIKey = errors.New("transport: API key is required")
)

// ConnectionError describes a failure of the remote connection. Code and
// Reason come from the websocket close frame when the peer sent one.
type ConnectionError struct {
	Op     string
	Code   int
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	msg := "transport: " + e.Op
	if e.Code > 0 {
		msg += fmt.Sprintf(" (close %d)", e.Code)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Detail is the most specific human-readable cause available.
func (e *ConnectionError) Detail() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Op
}
