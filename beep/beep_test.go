package beep

import "testing"

func TestSamples(t *testing.T) {
	tests := []struct {
		cue  Cue
		want int
	}{
		{CueConnect, sampleRate / 5},
		{CueEnd, sampleRate / 5},
		{CueError, 2*int(sampleRate*0.08) + int(sampleRate*0.05)},
	}
	for _, tt := range tests {
		got := Samples(tt.cue)
		if len(got) != tt.want {
			t.Errorf("Samples(%d) has %d samples, want %d", tt.cue, len(got), tt.want)
		}
	}
}

func TestSamplesDecay(t *testing.T) {
	s := Samples(CueConnect)
	peak := func(part []int16) int {
		m := 0
		for _, v := range part {
			m = max(m, abs(int(v)))
		}
		return m
	}
	head, tail := peak(s[:1000]), peak(s[len(s)-1000:])
	if head == 0 || tail >= head {
		t.Errorf("envelope does not decay: head %d, tail %d", head, tail)
	}
}

func TestErrorCueHasGap(t *testing.T) {
	s := Samples(CueError)
	beep := int(sampleRate * 0.08)
	for i, v := range s[beep : beep+int(sampleRate*0.05)] {
		if v != 0 {
			t.Fatalf("gap sample %d = %d, want 0", i, v)
		}
	}
}

func TestUnknownCue(t *testing.T) {
	if s := Samples(Cue(99)); s != nil {
		t.Errorf("Samples(99) = %d samples, want none", len(s))
	}
}

func TestDisable(t *testing.T) {
	if !Enabled() {
		t.Fatal("beeps disabled by default")
	}
	Disable()
	t.Cleanup(func() { disabled.Store(false) })
	if Enabled() {
		t.Error("Enabled after Disable")
	}
	Play(CueConnect)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
