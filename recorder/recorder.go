// Package recorder writes the learner's microphone to a FLAC file.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"parla/codec"
	"parla/log"
)

// MaxBlockSize is the largest frame FLAC can carry.
const MaxBlockSize = 65535

type Recorder struct {
	mu      sync.Mutex
	enc     *flac.Encoder
	file    *os.File
	samples uint64
	failed  bool
	closed  bool
}

// Create records to path, truncating any existing file.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	r, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// New records to w. When w is seekable the stream header is rewritten with
// the final sample count on Close.
func New(w io.Writer) (*Recorder, error) {
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  MaxBlockSize,
		SampleRate:    codec.CaptureSampleRate,
		NChannels:     codec.Channels,
		BitsPerSample: codec.BitsPerSample,
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &Recorder{enc: enc}, nil
}

// Write encodes one block of 16 kHz mono samples.
func (r *Recorder) Write(pcm []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}
	for len(pcm) > 0 {
		n := min(len(pcm), MaxBlockSize)
		if err := r.writeFrame(pcm[:n]); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return nil
}

func (r *Recorder) writeFrame(block []int16) error {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    codec.CaptureSampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: codec.BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(block),
		}},
	}
	if err := r.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	r.samples += uint64(len(block))
	return nil
}

// Tap is a capture tap. The first write error is logged and recording stops;
// the conversation carries on.
func (r *Recorder) Tap(pcm []int16) {
	r.mu.Lock()
	failed := r.failed
	r.mu.Unlock()
	if failed {
		return
	}
	if err := r.Write(pcm); err != nil {
		log.Warnf("recording stopped: %v", err)
		r.mu.Lock()
		r.failed = true
		r.mu.Unlock()
	}
}

func (r *Recorder) Samples() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.enc.Close()
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("closing recording: %w", err)
	}
	return nil
}
