// Package beep plays the short cues that mark a conversation starting,
// ending or failing.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

type Cue int

const (
	CueConnect Cue = iota
	CueEnd
	CueError
)

const sampleRate = 44100

// Connect: high and short. End: a step lower. Error: low double beep.
var tones = map[Cue]struct {
	freq, volume, decay float64
	dur, gap           float64
	double             bool
}{
	CueConnect: {freq: 1200, volume: 0.5, decay: 60, dur: 0.2},
	CueEnd:     {freq: 900, volume: 0.5, decay: 40, dur: 0.2},
	CueError:   {freq: 350, volume: 0.6, decay: 30, dur: 0.08, gap: 0.05, double: true},
}

// Samples returns the mono PCM16 waveform for c.
func Samples(c Cue) []int16 {
	t, ok := tones[c]
	if !ok {
		return nil
	}
	s := generateTick(sampleRate, t.freq, t.dur, t.volume, t.decay)
	if !t.double {
		return s
	}
	out := make([]int16, 0, 2*len(s)+int(sampleRate*t.gap))
	out = append(out, s...)
	out = append(out, make([]int16, int(sampleRate*t.gap))...)
	return append(out, s...)
}

func generateTick(rate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(rate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// Play starts c in the background.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	play(Samples(c))
}

func PlayConnect() { Play(CueConnect) }
func PlayEnd()     { Play(CueEnd) }
func PlayError()   { Play(CueError) }
