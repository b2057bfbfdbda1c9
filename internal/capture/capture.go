// Package capture wraps microphone access behind an exclusive, single-use
// recording handle. The hardware device is acquired once per recording and
// released on every exit path, including device errors.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngabriel/parley/internal/audio"
	"github.com/ngabriel/parley/internal/fault"
)

// Device abstracts the platform microphone. Implementations return raw
// PCM16LE mono samples from Stop.
type Device interface {
	RequestPermission(ctx context.Context) bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
	SampleRate() int
	Close() error
}

// Handle represents one in-progress recording. Single-use: once passed to
// Stop or Abort it is invalid.
type Handle struct {
	id        string
	startedAt time.Time
}

func (h *Handle) ID() string { return h.id }

// Service enforces the one-recording-at-a-time invariant over a Device.
type Service struct {
	mu      sync.Mutex
	device  Device
	asked   bool
	granted bool
	active  *Handle
}

func NewService(device Device) *Service {
	return &Service{device: device}
}

// RequestPermission triggers the OS prompt at most once and caches the
// answer. It never returns an error so callers can branch to a user-facing
// explanation.
func (s *Service) RequestPermission(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.asked {
		s.granted = s.device.RequestPermission(ctx)
		s.asked = true
	}
	return s.granted
}

// Start acquires the microphone and returns the live recording handle.
func (s *Service) Start(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.asked || !s.granted {
		return nil, fault.New(fault.KindPermissionDenied, "microphone permission not granted")
	}
	if s.active != nil {
		return nil, fault.New(fault.KindDeviceBusy, "a recording is already active")
	}
	if err := s.device.Start(ctx); err != nil {
		return nil, fault.Wrap(fault.KindDeviceBusy, err, "start microphone")
	}

	s.active = &Handle{id: uuid.NewString(), startedAt: time.Now().UTC()}
	return s.active, nil
}

// Stop ends the recording identified by handle and returns a transport-ready
// WAV-encoded buffer. The handle becomes invalid either way.
func (s *Service) Stop(ctx context.Context, handle *Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle == nil || s.active == nil || s.active.id != handle.id {
		return nil, fault.New(fault.KindNoActiveRecording, "handle does not match the live recording")
	}
	// The hardware lock is released no matter how the device call goes.
	s.active = nil

	pcm, err := s.device.Stop(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindNoActiveRecording, err, "stop microphone")
	}

	encoded, err := audio.EncodeWAVPCM16LE(pcm, s.device.SampleRate())
	if err != nil {
		return nil, fault.Wrap(fault.KindNoActiveRecording, err, "encode capture")
	}
	return encoded, nil
}

// Abort discards an in-progress recording without encoding. Safe to call
// with a stale handle; end-session uses it as a best-effort cancel.
func (s *Service) Abort(ctx context.Context, handle *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle == nil || s.active == nil || s.active.id != handle.id {
		return
	}
	s.active = nil
	_, _ = s.device.Stop(ctx)
}

// Recording reports whether a capture is currently live.
func (s *Service) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Close releases the underlying device.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active = nil
		_, _ = s.device.Stop(context.Background())
	}
	return s.device.Close()
}
