package clipboard

import (
	"errors"
	"testing"

	"parla/transcript"
)

func stubWrite(t *testing.T, err error) *string {
	t.Helper()
	var got string
	orig := write
	write = func(s string) error {
		got = s
		return err
	}
	t.Cleanup(func() { write = orig })
	return &got
}

func TestCopyTranscript(t *testing.T) {
	got := stubWrite(t, nil)
	turns := []transcript.Turn{
		{Speaker: transcript.SpeakerUser, Text: "Ciao!", IsFinal: true},
		{Speaker: transcript.SpeakerModel, Text: "Ciao, come va?", IsFinal: true},
		{Speaker: transcript.SpeakerModel, Text: "", IsFinal: true},
	}
	n, err := CopyTranscript(turns)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("copied %d turns, want 2", n)
	}
	if want := "Tu: Ciao!\nTutor: Ciao, come va?\n"; *got != want {
		t.Errorf("clipboard = %q, want %q", *got, want)
	}
}

func TestCopyTranscriptEmpty(t *testing.T) {
	got := stubWrite(t, nil)
	n, err := CopyTranscript(nil)
	if err != nil || n != 0 {
		t.Errorf("CopyTranscript(nil) = %d, %v", n, err)
	}
	if *got != "" {
		t.Errorf("clipboard written for empty transcript: %q", *got)
	}
}

func TestCopyTranscriptError(t *testing.T) {
	stubWrite(t, errors.New("xclip failed"))
	turns := []transcript.Turn{{Speaker: transcript.SpeakerUser, Text: "Ciao", IsFinal: true}}
	if n, err := CopyTranscript(turns); err == nil || n != 0 {
		t.Errorf("CopyTranscript = %d, %v, want error", n, err)
	}
}
