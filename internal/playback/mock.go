package playback

import (
	"errors"
	"sync"

	"github.com/ngabriel/parley/internal/audio"
)

var errMockBusy = errors.New("mock player already has an active playback")

// MockPlayer is an in-process player for tests and mock audio mode.
// Playback finishes only when FinishCurrent is called, so tests control
// exactly when the finished hook fires.
type MockPlayer struct {
	mu      sync.Mutex
	playErr error
	plays   int
	stops   int
	done    chan error
}

func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

func (p *MockPlayer) FailNextPlay(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playErr = err
}

func (p *MockPlayer) Counts() (plays, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays, p.stops
}

// FinishCurrent simulates the active playback reaching its natural end.
func (p *MockPlayer) FinishCurrent() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		done <- nil
	}
}

func (p *MockPlayer) Play(_ audio.Clip) (<-chan error, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playErr != nil {
		err := p.playErr
		p.playErr = nil
		return nil, nil, err
	}
	if p.done != nil {
		return nil, nil, errMockBusy
	}

	p.plays++
	done := make(chan error, 1)
	p.done = done
	stop := func() {
		p.mu.Lock()
		p.stops++
		if p.done == done {
			p.done = nil
			done <- nil
		}
		p.mu.Unlock()
	}
	return done, stop, nil
}
