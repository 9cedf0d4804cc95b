package audio

import (
	"math"
	"time"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/voice"
)

// WaveType defines oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveTriangle
	WaveSquare
	WaveSaw
	WaveNoise
)

// Partial is one component of an additive tone, relative to the
// fundamental.
type Partial struct {
	Ratio float64
	Gain  float64
}

// Timbre shapes every note a synth plays.
type Timbre struct {
	Name     string
	Wave     WaveType
	Partials []Partial
	Attack   time.Duration
	// Decay is the time constant of the exponential fall after the attack.
	Decay time.Duration
	// Ring extends a note past its requested duration.
	Ring time.Duration
}

var Timbres = map[string]Timbre{
	"marimba": {
		Name:     "marimba",
		Wave:     WaveSine,
		Partials: []Partial{{1, 1}, {4, 0.25}, {9.9, 0.05}},
		Attack:   2 * time.Millisecond,
		Decay:    250 * time.Millisecond,
		Ring:     400 * time.Millisecond,
	},
	"glass": {
		Name:     "glass",
		Wave:     WaveSine,
		Partials: []Partial{{1, 1}, {2.76, 0.4}, {5.4, 0.2}, {8.93, 0.08}},
		Attack:   time.Millisecond,
		Decay:    800 * time.Millisecond,
		Ring:     1200 * time.Millisecond,
	},
	"pluck": {
		Name:     "pluck",
		Wave:     WaveTriangle,
		Partials: []Partial{{1, 1}, {2, 0.5}, {3, 0.33}, {4, 0.25}},
		Attack:   3 * time.Millisecond,
		Decay:    150 * time.Millisecond,
		Ring:     250 * time.Millisecond,
	},
	"chip": {
		Name:     "chip",
		Wave:     WaveSquare,
		Partials: []Partial{{1, 1}},
		Attack:   time.Millisecond,
		Decay:    400 * time.Millisecond,
		Ring:     30 * time.Millisecond,
	},
}

// LookupTimbre returns the named timbre, falling back to the default.
func LookupTimbre(name string) Timbre {
	return Timbres[config.ValidTimbre(name)]
}

// voiceColor gives each voice its own identity: a slight detune, a place
// in the stereo field and, from the fifth voice on, an octave shift.
type voiceColor struct {
	detune float64 // cents
	pan    float64
	octave int
}

func colorFor(v voice.Voice) voiceColor {
	lane := int(v) % 4
	if lane < 0 {
		lane = 0
	}
	return voiceColor{
		detune: (float64(lane) - 1.5) * 4,
		pan:    (float64(lane)/3)*1.2 - 0.6,
		octave: (int(v) / 4) % 2,
	}
}

func centsRatio(cents float64) float64 {
	return math.Pow(2, cents/1200)
}
