package audio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("audio: microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio: no input device available")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives mono float samples in [-1, 1]. It runs on the
// device's thread and must not block.
type DataCallback func(samples []float32)

// RenderFunc fills out with mono float samples and returns how many it wrote.
// The remainder is played as silence.
type RenderFunc func(out []float32) int

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type PlaybackConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewPlayback(config PlaybackConfig) (PlaybackDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
	SetRenderer(fn RenderFunc)
}

var permissionHints = []string{"permission", "denied", "not authorized", "access"}

var unavailableHints = []string{"no such", "not found", "no device", "no backend", "connection refused", "unavailable"}

// Classify maps a backend error onto ErrPermissionDenied or
// ErrDeviceUnavailable when its message allows it. Other errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, h := range permissionHints {
		if strings.Contains(msg, h) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	for _, h := range unavailableHints {
		if strings.Contains(msg, h) {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	return err
}
