//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"parla/codec"
	"parla/log"
)

var (
	initOnce sync.Once
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	deviceMu sync.Mutex

	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
)

func initDevice() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, cfg, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: malgo context: %v", err)
		return
	}
	if err := initDevice(); err != nil {
		log.Warnf("beep: malgo device: %v", err)
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(out, _ []byte, frameCount uint32) {
	clear(out)
	samples := current.Load()
	if samples == nil {
		return
	}
	p := pos.Load()
	remaining := uint32(len(*samples)) - p
	if remaining == 0 {
		current.Store(nil)
		return
	}
	n := min(frameCount*2, remaining, uint32(len(out)))
	copy(out[:n], (*samples)[p:p+n])
	pos.Store(p + n)
}

func play(samples []int16) {
	initOnce.Do(initSound)
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	raw := codec.PCM16Bytes(samples)

	deviceMu.Lock()
	defer deviceMu.Unlock()

	device.Stop()
	pos.Store(0)
	current.Store(&raw)
	if err := device.Start(); err != nil {
		// The device goes stale across sleep and wake on macOS.
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
