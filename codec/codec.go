package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	Channels           = 1
	BitsPerSample      = 16
	FrameSize          = 4096

	CaptureMIME = "audio/pcm;rate=16000"
)

var ErrDecode = errors.New("codec: decode failed")

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %v", e.Reason, e.Err)
	}
	return "codec: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// EncodeFrame packs samples as little-endian PCM16 and returns them base64 encoded.
func EncodeFrame(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCM16Bytes(samples))
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(s string) ([]int16, error) {
	raw, err := DecodeBytes(s)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(raw))}
	}
	return BytesPCM16(raw), nil
}

// DecodeBytes decodes a base64 audio payload without interpreting it.
func DecodeBytes(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	return raw, nil
}

func PCM16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesPCM16 ignores a trailing odd byte.
func BytesPCM16(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}

// FloatToPCM16 scales by 32768 without clamping. Samples outside [-1, 1)
// wrap around instead of saturating.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		out[i] = int16(int32(f * 32768))
	}
	return out
}

type Buffer struct {
	SampleRate int
	Channels   int
	Data       [][]float32
}

func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// DecodeAudioChunk turns interleaved PCM16 bytes into per-channel float
// samples in [-1, 1].
func DecodeAudioChunk(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	stride := 2 * channels
	if len(raw)%stride != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("length %d not a multiple of %d", len(raw), stride)}
	}

	frames := len(raw) / stride
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([][]float32, channels),
	}
	for ch := range buf.Data {
		buf.Data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			s := int16(binary.LittleEndian.Uint16(raw[(i*channels+ch)*2:]))
			buf.Data[ch][i] = float32(s) / 32768
		}
	}
	return buf, nil
}
