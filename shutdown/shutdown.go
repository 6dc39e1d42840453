// Package shutdown routes termination signals to the process's exit path.
package shutdown

import (
	"os"
	"os/signal"
)

// Notify relays the platform's termination signals to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}

// Stop undoes Notify.
func Stop(ch chan<- os.Signal) {
	signal.Stop(ch)
}

// Channel returns a fresh channel already registered with Notify.
func Channel() chan os.Signal {
	ch := make(chan os.Signal, 1)
	Notify(ch)
	return ch
}
