// Package playback plays synthesized reply payloads. At most one playback is
// active and at most one temp audio file exists at any instant; starting a
// new playback always releases the previous one first.
package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ngabriel/parley/internal/audio"
	"github.com/ngabriel/parley/internal/fault"
)

// Player sounds a decoded clip. Play returns a channel that receives exactly
// one value when the playback ends, whether it ran to completion or the stop
// function halted it early; the service's waiter relies on that to avoid
// leaking. Implementations must tolerate stop after natural finish.
type Player interface {
	Play(clip audio.Clip) (done <-chan error, stop func(), err error)
}

type resource struct {
	id   string
	path string
	stop func()
}

// Service owns the single transient audio resource backing a playback.
type Service struct {
	mu       sync.Mutex
	player   Player
	cacheDir string
	current  *resource
	onDone   func(resourceID string)
}

func NewService(player Player, cacheDir string) *Service {
	return &Service{player: player, cacheDir: cacheDir}
}

// SetFinishedHook registers the callback fired when a playback finishes on
// its own (not via Stop). The controller uses it to advance its state machine.
func (s *Service) SetFinishedHook(hook func(resourceID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = hook
}

// Play materializes the payload as a temp file and starts playback,
// releasing any previous resource first. Last writer wins; nothing queues.
// It returns the resource id backing this playback.
func (s *Service) Play(payload []byte) (string, error) {
	clip, err := audio.DecodeWAVPCM16LE(payload)
	if err != nil {
		return "", fault.Wrap(fault.KindPlaybackFailed, err, "decode reply payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", fault.Wrap(fault.KindPlaybackFailed, err, "create cache dir")
	}
	name := fmt.Sprintf("parley_reply_%d.wav", time.Now().UnixNano())
	path := filepath.Join(s.cacheDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fault.Wrap(fault.KindPlaybackFailed, err, "write temp audio")
	}

	done, stop, err := s.player.Play(clip)
	if err != nil {
		// The failed resource is still released; no leak on the error path.
		_ = os.Remove(path)
		return "", fault.Wrap(fault.KindPlaybackFailed, err, "start playback")
	}

	res := &resource{id: name, path: path, stop: stop}
	s.current = res

	go func() {
		<-done
		s.mu.Lock()
		if s.current != res {
			// Replaced or stopped; the releasing caller owned cleanup.
			s.mu.Unlock()
			return
		}
		s.current = nil
		_ = os.Remove(res.path)
		hook := s.onDone
		s.mu.Unlock()
		if hook != nil {
			hook(res.id)
		}
	}()

	return res.id, nil
}

// Stop halts any active playback and deletes its backing file. Idempotent;
// safe when nothing is playing.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// IsPlaying reflects live state for UI gating.
func (s *Service) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close releases the active resource, if any.
func (s *Service) Close() error {
	s.Stop()
	return nil
}

func (s *Service) releaseLocked() {
	if s.current == nil {
		return
	}
	res := s.current
	s.current = nil
	res.stop()
	_ = os.Remove(res.path)
}
