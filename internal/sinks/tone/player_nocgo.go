//go:build nocgo

package tone

import "github.com/nidza07/nvda/internal/speech"

// Player is unavailable in builds without audio support.
type Player struct{}

// NewPlayer always fails with ErrUnavailable.
func NewPlayer(Config) (*Player, error) {
	return nil, ErrUnavailable
}

// Beep always fails with ErrUnavailable.
func (p *Player) Beep(speech.Beep) <-chan error {
	return speech.Done(ErrUnavailable)
}

// Stop does nothing.
func (p *Player) Stop() {}
