//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo: %v", ErrDeviceUnavailable, err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", Classify(err))
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	c := &malgoCapture{name: "system default"}
	if device != nil {
		c.name = device.Name
	}
	channels := int(max(config.Channels, 1))

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil {
				return
			}
			// downmix into the reusable scratch buffer
			n := int(frameCount)
			if cap(c.scratch) < n {
				c.scratch = make([]float32, n)
			}
			buf := c.scratch[:n]
			for i := 0; i < n; i++ {
				var sum float32
				for ch := 0; ch < channels; ch++ {
					off := (i*channels + ch) * 4
					sum += math.Float32frombits(binary.LittleEndian.Uint32(input[off:]))
				}
				buf[i] = sum / float32(channels)
			}
			(*cb)(buf)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo capture: %w", Classify(err))
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) NewPlayback(config PlaybackConfig) (PlaybackDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = config.SampleRate

	p := &malgoPlayback{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount)
			if cap(p.scratch) < n {
				p.scratch = make([]float32, n)
			}
			buf := p.scratch[:n]
			written := 0
			if fn := p.renderer.Load(); fn != nil {
				written = (*fn)(buf)
			}
			clear(buf[written:])
			for i, s := range buf {
				binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(s))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo playback: %w", Classify(err))
	}
	p.device = dev
	return p, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	callback atomic.Pointer[DataCallback]
	scratch  []float32
	once     sync.Once
}

func (c *malgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("malgo start: %w", Classify(err))
	}
	return nil
}

func (c *malgoCapture) Stop() {
	_ = c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.once.Do(func() {
		c.callback.Store(nil)
		c.device.Uninit()
	})
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) DeviceName() string {
	return c.name
}

type malgoPlayback struct {
	device   *malgo.Device
	renderer atomic.Pointer[RenderFunc]
	scratch  []float32
	once     sync.Once
}

func (p *malgoPlayback) Start() error {
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("malgo start: %w", Classify(err))
	}
	return nil
}

func (p *malgoPlayback) Stop() {
	_ = p.device.Stop()
}

func (p *malgoPlayback) Close() {
	p.once.Do(func() {
		p.renderer.Store(nil)
		p.device.Uninit()
	})
}

func (p *malgoPlayback) SetRenderer(fn RenderFunc) {
	p.renderer.Store(&fn)
}
