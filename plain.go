package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"parla/session"
	"parla/transcript"
)

// plainSink prints events as lines for terminals without the TUI.
type plainSink struct {
	w io.Writer
}

func (s plainSink) Status(st session.Status, msg string) {
	if msg != "" {
		fmt.Fprintf(s.w, "[%s] %s\n", st.Label(), msg)
		return
	}
	fmt.Fprintf(s.w, "[%s]\n", st.Label())
}

func (s plainSink) Partial(transcript.Partial) {}

func (s plainSink) Turn(t transcript.Turn) {
	fmt.Fprintf(s.w, "%s: %s\n", t.Speaker.Label(), strings.TrimSpace(t.Text))
}

func (s plainSink) Level(float64) {}

func (s plainSink) Hint(text string) {
	if text != "" {
		fmt.Fprintf(s.w, "! %s\n", text)
	}
}

func (s plainSink) Notice(text string) {
	fmt.Fprintln(s.w, text)
}

type plainActions interface {
	Toggle()
	Copy()
}

// runPlain reads commands from in until "q" or EOF. An empty line toggles
// the conversation.
func runPlain(in io.Reader, out io.Writer, actions plainActions) {
	fmt.Fprintln(out, "Invio: avvia/termina · c: copia la trascrizione · q: esci")
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "", "s", "e":
			actions.Toggle()
		case "c":
			actions.Copy()
		case "q":
			return
		default:
			fmt.Fprintln(out, "Comando sconosciuto.")
		}
	}
}
