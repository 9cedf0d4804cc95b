package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// tone is an additive oscillator with an attack and exponential decay.
type tone struct {
	freq     float64
	partials []Partial
	wave     WaveType
	rate     beep.SampleRate
	attack   int
	decay    float64
	duration int
	position int
}

func (t *tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if t.position >= t.duration {
			return i, i > 0
		}
		sec := float64(t.position) / float64(t.rate)

		val := 0.0
		for _, p := range t.partials {
			phase := t.freq * p.Ratio * sec
			val += p.Gain * wave(t.wave, phase-math.Floor(phase))
		}

		env := 1.0
		if t.position < t.attack {
			env = float64(t.position) / float64(t.attack)
		} else if t.decay > 0 {
			env = math.Exp(-float64(t.position-t.attack) / t.decay)
		}

		samples[i][0] = val * env
		samples[i][1] = val * env
		t.position++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

func wave(w WaveType, phase float64) float64 {
	switch w {
	case WaveTriangle:
		return 4.0*math.Abs(phase-0.5) - 1.0
	case WaveSquare:
		if phase < 0.5 {
			return 1.0
		}
		return -1.0
	case WaveSaw:
		return 2.0 * (phase - 0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// noise is a decaying burst used for percussive hits.
type noise struct {
	rng      *rand.Rand
	decay    float64
	duration int
	position int
}

func (n *noise) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if n.position >= n.duration {
			return i, i > 0
		}
		v := (n.rng.Float64()*2 - 1) * math.Exp(-float64(n.position)/n.decay)
		samples[i][0] = v
		samples[i][1] = v
		n.position++
	}
	return len(samples), true
}

func (n *noise) Err() error { return nil }

// newVolume scales a stream linearly; zero or less silences it.
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

func normalization(partials []Partial) float64 {
	sum := 0.0
	for _, p := range partials {
		sum += math.Abs(p.Gain)
	}
	if sum == 0 {
		return 0
	}
	return 1 / sum
}

// NoteStreamer renders one note of timbre t at the given frequency. The
// stream lasts the requested duration plus the timbre's ring.
func NoteStreamer(t Timbre, freq float64, dur time.Duration, velocity float64, pan float64, rate beep.SampleRate) beep.Streamer {
	osc := &tone{
		freq:     freq,
		partials: t.Partials,
		wave:     t.Wave,
		rate:     rate,
		attack:   max(rate.N(t.Attack), 1),
		decay:    float64(rate.N(t.Decay)),
		duration: rate.N(dur + t.Ring),
	}
	shaped := newVolume(osc, velocity*normalization(t.Partials))
	return &effects.Pan{Streamer: shaped, Pan: pan}
}

// HitStreamer renders a short noise burst scaled by intensity.
func HitStreamer(intensity float64, seed int64, rate beep.SampleRate) beep.Streamer {
	n := &noise{
		rng:      rand.New(rand.NewSource(seed)),
		decay:    float64(rate.N(8 * time.Millisecond)),
		duration: rate.N(40 * time.Millisecond),
	}
	return newVolume(n, 0.4*intensity)
}
