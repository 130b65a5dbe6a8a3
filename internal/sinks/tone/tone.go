// Package tone plays the short beeps that announce capital letters and
// other cues, ahead of the speech they belong to.
package tone

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/nidza07/nvda/internal/speech"
)

// ErrUnavailable is returned when the binary was built without audio
// support.
var ErrUnavailable = errors.New("tone output is not available in this build")

// Config holds the audio device settings.
type Config struct {
	SampleRate int     // 44100 or 48000 Hz
	Volume     float64 // 0.0 to 1.0
}

// DefaultConfig returns the default tone configuration.
func DefaultConfig() Config {
	return Config{SampleRate: 44100, Volume: 0.5}
}

// fade is the ramp at each end of a tone that keeps it from clicking.
const fade = 5 * time.Millisecond

// Synthesize renders a beep as signed 16-bit little endian mono PCM.
func Synthesize(b speech.Beep, sampleRate int, volume float64) []byte {
	if b.Hz <= 0 || b.Duration <= 0 || sampleRate <= 0 {
		return nil
	}
	volume = math.Max(0, math.Min(1, volume))

	samples := int(int64(sampleRate) * int64(b.Duration) / int64(time.Second))
	ramp := int(int64(sampleRate) * int64(fade) / int64(time.Second))
	ramp = min(ramp, samples/2)

	pcm := make([]byte, samples*2)
	for i := range samples {
		gain := volume
		switch {
		case ramp > 0 && i < ramp:
			gain *= float64(i) / float64(ramp)
		case ramp > 0 && i >= samples-ramp:
			gain *= float64(samples-1-i) / float64(ramp)
		}
		v := math.Sin(2 * math.Pi * b.Hz * float64(i) / float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*gain*math.MaxInt16))) //nolint:gosec
	}
	return pcm
}
