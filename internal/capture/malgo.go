package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDevice records from the default system microphone via miniaudio.
type MalgoDevice struct {
	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	buf        []byte
	sampleRate int
}

// NewMalgoDevice initializes the audio context. Failure here usually means
// no capture hardware or a missing audio backend on the host.
func NewMalgoDevice(sampleRate int) (*MalgoDevice, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoDevice{ctx: mctx, sampleRate: sampleRate}, nil
}

// RequestPermission reports whether the audio context is usable. Desktop
// hosts have no runtime prompt; a working context is the grant.
func (d *MalgoDevice) RequestPermission(_ context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx != nil
}

func (d *MalgoDevice) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return fmt.Errorf("audio context not initialized")
	}
	if d.device != nil {
		return fmt.Errorf("capture device already running")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(d.sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	d.buf = d.buf[:0]
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			d.mu.Lock()
			d.buf = append(d.buf, input...)
			d.mu.Unlock()
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	d.device = dev
	return nil
}

func (d *MalgoDevice) Stop(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	dev := d.device
	d.device = nil
	d.mu.Unlock()

	if dev == nil {
		return nil, fmt.Errorf("capture device not running")
	}
	_ = dev.Stop()
	dev.Uninit()

	d.mu.Lock()
	pcm := make([]byte, len(d.buf))
	copy(pcm, d.buf)
	d.buf = d.buf[:0]
	d.mu.Unlock()
	return pcm, nil
}

func (d *MalgoDevice) SampleRate() int { return d.sampleRate }

func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}
