package playback

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ngabriel/parley/internal/audio"
)

// OtoPlayer sounds clips through the default output device. The oto context
// is process-global and fixed to the rate of the first clip played; the
// backend synthesizes every reply in one format, so in practice the rate
// never changes mid-session.
type OtoPlayer struct {
	mu       sync.Mutex
	ctx      *oto.Context
	rate     int
	channels int
}

func NewOtoPlayer() *OtoPlayer {
	return &OtoPlayer{}
}

func (p *OtoPlayer) ensureContext(clip audio.Clip) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		if clip.SampleRate != p.rate || clip.Channels != p.channels {
			return nil, fmt.Errorf("clip format %d/%dch differs from output context %d/%dch",
				clip.SampleRate, clip.Channels, p.rate, p.channels)
		}
		return p.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   clip.SampleRate,
		ChannelCount: clip.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("init output context: %w", err)
	}
	<-ready
	p.ctx = ctx
	p.rate = clip.SampleRate
	p.channels = clip.Channels
	return ctx, nil
}

func (p *OtoPlayer) Play(clip audio.Clip) (<-chan error, func(), error) {
	ctx, err := p.ensureContext(clip)
	if err != nil {
		return nil, nil, err
	}

	player := ctx.NewPlayer(bytes.NewReader(clip.PCM))
	player.Play()

	done := make(chan error, 1)
	var once sync.Once
	finish := func() {
		once.Do(func() {
			_ = player.Close()
			done <- nil
		})
	}

	// oto has no completion callback; the clip length is known exactly, so a
	// timer stands in for one. A small pad covers device buffer drain.
	timer := time.AfterFunc(clip.Duration()+50*time.Millisecond, finish)
	stop := func() {
		timer.Stop()
		finish()
	}
	return done, stop, nil
}
