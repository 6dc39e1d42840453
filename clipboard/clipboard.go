// Package clipboard copies finished transcripts to the system clipboard.
package clipboard

import (
	cb "github.com/atotto/clipboard"

	"parla/transcript"
)

// write is swapped in tests.
var write = cb.WriteAll

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return write(text)
}

// CopyTranscript copies turns as "Label: text" lines and returns how many
// turns were copied.
func CopyTranscript(turns []transcript.Turn) (int, error) {
	var final []transcript.Turn
	for _, t := range turns {
		if t.IsFinal && t.Text != "" {
			final = append(final, t)
		}
	}
	if len(final) == 0 {
		return 0, nil
	}
	if err := Copy(transcript.Format(final)); err != nil {
		return 0, err
	}
	return len(final), nil
}
