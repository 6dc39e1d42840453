package playback

import (
	"sync"
	"time"

	"parla/codec"
)

// Handle identifies one scheduled chunk.
type Handle struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration
}

func (h Handle) End() time.Duration { return h.Start + h.Duration }

type entry struct {
	start   int64 // in output samples
	samples []float32
}

func (e *entry) end() int64 { return e.start + int64(len(e.samples)) }

// Scheduler places decoded chunks back to back on a sample clock that only
// moves forward when the output device renders.
type Scheduler struct {
	rate int

	mu        sync.Mutex
	pos       int64
	cursor    int64
	nextID    uint64
	active    map[uint64]*entry
	onDrained func()
}

func NewScheduler(sampleRate int) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = codec.PlaybackSampleRate
	}
	return &Scheduler{
		rate:   sampleRate,
		active: make(map[uint64]*entry),
	}
}

// OnDrained sets the callback run when the last active chunk finishes. It is
// called from Render without any scheduler lock held.
func (s *Scheduler) OnDrained(fn func()) {
	s.mu.Lock()
	s.onDrained = fn
	s.mu.Unlock()
}

// Schedule starts buf at max(cursor, now) and advances the cursor by its
// length.
func (s *Scheduler) Schedule(buf *codec.Buffer) Handle {
	samples := s.mono(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.pos)
	s.cursor = start + int64(len(samples))
	s.nextID++
	id := s.nextID
	if len(samples) > 0 {
		s.active[id] = &entry{start: start, samples: samples}
	}
	return Handle{
		ID:       id,
		Start:    s.toDuration(start),
		Duration: s.toDuration(int64(len(samples))),
	}
}

// Render mixes the active chunks into out, advances the clock by len(out)
// and retires every chunk that has finished.
func (s *Scheduler) Render(out []float32) int {
	clear(out)

	s.mu.Lock()
	from, to := s.pos, s.pos+int64(len(out))
	for _, e := range s.active {
		lo, hi := max(from, e.start), min(to, e.end())
		for p := lo; p < hi; p++ {
			out[p-from] += e.samples[p-e.start]
		}
	}
	s.pos = to

	retired := 0
	for id, e := range s.active {
		if e.end() <= s.pos {
			delete(s.active, id)
			retired++
		}
	}
	var drained func()
	if retired > 0 && len(s.active) == 0 {
		drained = s.onDrained
	}
	s.mu.Unlock()

	if drained != nil {
		drained()
	}
	return len(out)
}

// StopAll drops every active chunk and pulls the cursor back to the clock.
// It does not signal drained.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	clear(s.active)
	s.cursor = s.pos
	s.mu.Unlock()
}

func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDuration(s.pos)
}

func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDuration(s.cursor)
}

func (s *Scheduler) SampleRate() int { return s.rate }

func (s *Scheduler) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.rate)
}

// mono downmixes buf and resamples it to the output rate.
func (s *Scheduler) mono(buf *codec.Buffer) []float32 {
	n := buf.Frames()
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for _, ch := range buf.Data {
		for i, v := range ch {
			out[i] += v
		}
	}
	if len(buf.Data) > 1 {
		scale := 1 / float32(len(buf.Data))
		for i := range out {
			out[i] *= scale
		}
	}
	if buf.SampleRate == s.rate || buf.SampleRate <= 0 {
		return out
	}
	return resample(out, buf.SampleRate, s.rate)
}

func resample(in []float32, from, to int) []float32 {
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		x := float64(i) * step
		j := int(x)
		frac := float32(x - float64(j))
		if j+1 < len(in) {
			out[i] = in[j]*(1-frac) + in[j+1]*frac
		} else {
			out[i] = in[len(in)-1]
		}
	}
	return out
}
