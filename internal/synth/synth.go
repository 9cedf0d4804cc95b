// Package synth defines the port the engine uses to make sound and the
// guard that keeps a failing or unready backend away from the frame loop.
package synth

import (
	"time"

	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/voice"
)

type NoteRequest struct {
	Voice    voice.Voice   `json:"voice"`
	Note     pitch.Note    `json:"note"`
	Duration time.Duration `json:"duration"`
	Velocity float64       `json:"velocity"`
	// At is the requested start time; zero means now.
	At time.Time `json:"at"`
}

type Synthesizer interface {
	PlayNote(req NoteRequest) error
	PlayPercussive(intensity float64) error
}

// Nop accepts and discards every request.
type Nop struct{}

func (Nop) PlayNote(NoteRequest) error   { return nil }
func (Nop) PlayPercussive(float64) error { return nil }
