package doctor

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"parla/shutdown"
)

// saveTerminal snapshots stdin's terminal mode. The returned func restores
// it and is safe to call more than once.
func saveTerminal() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.GetState(fd)
	if err != nil {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() { term.Restore(fd, state) })
	}
}

func setupInterruptHandler(restore func()) {
	sigChan := shutdown.Channel()
	go func() {
		<-sigChan
		restore()
		fmt.Println("\nInterrupted")
		os.Exit(1)
	}()
}
