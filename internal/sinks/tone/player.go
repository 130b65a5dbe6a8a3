//go:build !nocgo

package tone

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/nidza07/nvda/internal/speech"
)

// Player plays beeps on the default audio device. Only one Player may
// exist per process, since oto allows a single context.
type Player struct {
	context *oto.Context
	config  Config

	mu      sync.Mutex
	current *oto.Player
	stop    chan struct{}
}

// NewPlayer opens the audio device.
func NewPlayer(config Config) (*Player, error) {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return nil, fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	<-ready

	return &Player{context: ctx, config: config}, nil
}

// Beep plays b. The channel receives nil when the tone ends or is
// stopped.
func (p *Player) Beep(b speech.Beep) <-chan error {
	pcm := Synthesize(b, p.config.SampleRate, p.config.Volume)
	if len(pcm) == 0 {
		return speech.Done(nil)
	}

	p.mu.Lock()
	p.stopLocked()
	// pcm stays referenced by the reader until the player is closed
	player := p.context.NewPlayer(bytes.NewReader(pcm))
	stop := make(chan struct{})
	p.current, p.stop = player, stop
	player.Play()
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for player.IsPlaying() {
			select {
			case <-ticker.C:
			case <-stop:
				done <- nil
				return
			}
		}

		p.mu.Lock()
		if p.current == player {
			p.current, p.stop = nil, nil
			_ = player.Close()
		}
		p.mu.Unlock()
		done <- nil
	}()
	return done
}

// Stop cuts off the tone being played.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked stops the current tone (must be called with lock held).
func (p *Player) stopLocked() {
	if p.current == nil {
		return
	}
	p.current.Pause()
	_ = p.current.Close()
	close(p.stop)
	p.current, p.stop = nil, nil
}
