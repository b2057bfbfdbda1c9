package capture

import (
	"context"
	"errors"
	"sync"
)

// MockDevice is an in-process device used in tests and in mock audio mode.
type MockDevice struct {
	mu         sync.Mutex
	granted    bool
	running    bool
	pcm        []byte
	startErr   error
	stopErr    error
	starts     int
	stops      int
	sampleRate int
}

func NewMockDevice() *MockDevice {
	return &MockDevice{
		granted:    true,
		pcm:        make([]byte, 3200), // 100ms of 16kHz silence
		sampleRate: 16000,
	}
}

func (d *MockDevice) SetGranted(granted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.granted = granted
}

func (d *MockDevice) SetPCM(pcm []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pcm = pcm
}

func (d *MockDevice) FailNextStop(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr = err
}

func (d *MockDevice) Counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

func (d *MockDevice) RequestPermission(_ context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.granted
}

func (d *MockDevice) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	if d.running {
		return errors.New("mock device already running")
	}
	d.running = true
	d.starts++
	return nil
}

func (d *MockDevice) Stop(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.stops++
	if d.stopErr != nil {
		err := d.stopErr
		d.stopErr = nil
		return nil, err
	}
	out := make([]byte, len(d.pcm))
	copy(out, d.pcm)
	return out, nil
}

func (d *MockDevice) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

func (d *MockDevice) Close() error { return nil }
