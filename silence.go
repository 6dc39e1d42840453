package main

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)

	// speechRMS separates a voice from room noise on a typical laptop mic.
	speechRMS = 0.01

	defaultAutoClose = 60 * time.Second
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceAutoClose              // sustained silence, end the conversation
)

// silenceMonitor watches one tick per tickInterval while the tutor is
// listening. autoClose of zero disables SilenceAutoClose.
type silenceMonitor struct {
	warnAt    int
	windowSz  int
	autoClose bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	closed      bool
}

func newSilenceMonitor(autoClose time.Duration) *silenceMonitor {
	warnAt := int(silenceWarnAfter / tickInterval)
	windowSz := max(warnAt, int(autoClose/tickInterval))
	return &silenceMonitor{
		warnAt:    warnAt,
		windowSz:  windowSz,
		autoClose: autoClose > 0,
		window:    make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}

	if m.autoClose && !m.closed && m.ticks >= m.windowSz &&
		float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		m.closed = true
		return SilenceAutoClose
	}
	return SilenceNone
}

// Reset forgets history. It runs whenever the tutor is not listening, so
// time spent speaking or connecting never counts as learner silence.
func (m *silenceMonitor) Reset() {
	clear(m.window)
	m.ticks = 0
	m.speechCount = 0
	m.warned = false
	m.closed = false
}

// levelPeak keeps the loudest RMS reported since the last Take.
type levelPeak struct {
	bits atomic.Uint64
}

func (p *levelPeak) Observe(rms float64) {
	for {
		old := p.bits.Load()
		if rms <= math.Float64frombits(old) {
			return
		}
		if p.bits.CompareAndSwap(old, math.Float64bits(rms)) {
			return
		}
	}
}

func (p *levelPeak) Take() float64 {
	return math.Float64frombits(p.bits.Swap(0))
}
