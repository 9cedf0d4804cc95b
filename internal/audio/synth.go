// Package audio is the beep-based synthesizer behind the engine's playback
// port, with a portaudio device output and offline WAV rendering.
package audio

import (
	"errors"
	"sync"

	"github.com/gopxl/beep"

	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/synth"
)

const (
	BufferSize   = 1024
	MaxPolyphony = 48
)

var ErrPolyphony = errors.New("audio: polyphony limit reached")

// Synth mixes notes into a single stereo stream. It is a beep.Streamer and
// is safe to feed from one goroutine while another pulls samples.
type Synth struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	timbre Timbre
	rate   beep.SampleRate
	volume float64
	hits   int64
}

func NewSynth(timbre string, sampleRate int, volume float64) *Synth {
	return &Synth{
		mixer:  &beep.Mixer{},
		timbre: LookupTimbre(timbre),
		rate:   beep.SampleRate(sampleRate),
		volume: volume,
	}
}

func (s *Synth) SampleRate() beep.SampleRate { return s.rate }

func (s *Synth) Timbre() Timbre {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timbre
}

// SetTimbre switches the timbre for notes started from now on.
func (s *Synth) SetTimbre(name string) {
	s.mu.Lock()
	s.timbre = LookupTimbre(name)
	s.mu.Unlock()
}

func (s *Synth) PlayNote(req synth.NoteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mixer.Len() >= MaxPolyphony {
		return ErrPolyphony
	}
	s.mixer.Add(noteFor(s.timbre, req, s.volume, s.rate))
	return nil
}

func (s *Synth) PlayPercussive(intensity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mixer.Len() >= MaxPolyphony {
		return ErrPolyphony
	}
	s.hits++
	s.mixer.Add(HitStreamer(intensity*s.volume, s.hits, s.rate))
	return nil
}

// Active is the number of sounding notes.
func (s *Synth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Len()
}

// Stream always fills samples, with silence when nothing is playing.
func (s *Synth) Stream(samples [][2]float64) (int, bool) {
	clear(samples)
	s.mu.Lock()
	s.mixer.Stream(samples)
	s.mu.Unlock()
	return len(samples), true
}

func (s *Synth) Err() error { return nil }

func noteFor(t Timbre, req synth.NoteRequest, volume float64, rate beep.SampleRate) beep.Streamer {
	c := colorFor(req.Voice)
	midi := req.Note.Midi + 12*c.octave
	freq := pitch.Frequency(midi) * centsRatio(c.detune)
	return NoteStreamer(t, freq, req.Duration, req.Velocity*volume, c.pan, rate)
}
