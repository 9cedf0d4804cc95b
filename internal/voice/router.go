// Package voice binds geometry to logical sound channels and suppresses
// duplicate triggers per channel.
package voice

import (
	"sync"
	"time"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/pitch"
)

const (
	DefaultVoices    = 4
	MaxVoices        = 16
	DefaultTempo     = 120
	DefaultTolerance = 80 * time.Millisecond
)

type Voice int

// DefaultVoice carries sounds from unbound geometry.
const DefaultVoice Voice = 0

type Config struct {
	Voices        int           `yaml:"voices"`
	TempoRelative bool          `yaml:"tempo_relative"`
	Tolerance     time.Duration `yaml:"tolerance"`
}

func DefaultConfig() Config {
	return Config{
		Voices:        DefaultVoices,
		TempoRelative: true,
		Tolerance:     DefaultTolerance,
	}
}

type Binding struct {
	Voice Voice
	Note  pitch.Note
}

type lastTrigger struct {
	note int
	at   time.Time
}

// Router is safe for concurrent use.
type Router struct {
	mu       sync.Mutex
	cfg      Config
	tempo    int
	bindings map[dynamo.BodyID]Binding
	last     []lastTrigger
	fired    []bool
	cursor   int
}

func NewRouter(cfg Config) *Router {
	if cfg.Voices < 1 {
		cfg.Voices = 1
	}
	if cfg.Voices > MaxVoices {
		cfg.Voices = MaxVoices
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	return &Router{
		cfg:      cfg,
		tempo:    DefaultTempo,
		bindings: make(map[dynamo.BodyID]Binding),
		last:     make([]lastTrigger, cfg.Voices),
		fired:    make([]bool, cfg.Voices),
	}
}

func (r *Router) Voices() int { return r.cfg.Voices }

func (r *Router) clampVoice(v Voice) Voice {
	if v < 0 {
		return 0
	}
	if int(v) >= r.cfg.Voices {
		return Voice(r.cfg.Voices - 1)
	}
	return v
}

// Assign binds id to voice with note, replacing any previous binding.
func (r *Router) Assign(id dynamo.BodyID, v Voice, note pitch.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[id] = Binding{Voice: r.clampVoice(v), Note: note}
}

// Retune changes the note of an existing binding and keeps its voice.
func (r *Router) Retune(id dynamo.BodyID, note pitch.Note) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	if !ok {
		return false
	}
	b.Note = note
	r.bindings[id] = b
	return true
}

func (r *Router) Unassign(id dynamo.BodyID) {
	r.mu.Lock()
	delete(r.bindings, id)
	r.mu.Unlock()
}

func (r *Router) Binding(id dynamo.BodyID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	return b, ok
}

func (r *Router) VoiceFor(id dynamo.BodyID) Voice {
	if b, ok := r.Binding(id); ok {
		return b.Voice
	}
	return DefaultVoice
}

// NextVoice hands out voices round-robin for new geometry.
func (r *Router) NextVoice() Voice {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := Voice(r.cursor)
	r.cursor = (r.cursor + 1) % r.cfg.Voices
	return v
}

func (r *Router) Bound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Clear drops all bindings and trigger history.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[dynamo.BodyID]Binding)
	for i := range r.last {
		r.last[i] = lastTrigger{}
		r.fired[i] = false
	}
	r.cursor = 0
}

func (r *Router) SetTempo(bpm int) {
	if bpm <= 0 {
		return
	}
	r.mu.Lock()
	r.tempo = bpm
	r.mu.Unlock()
}

func (r *Router) Tempo() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tempo
}

// Sixteenth is one step of the sequencer grid at the current tempo.
func (r *Router) Sixteenth() time.Duration {
	return time.Minute / time.Duration(r.Tempo()*4)
}

// Tolerance is the minimum spacing between identical triggers on a voice:
// one 32nd note when tempo-relative, the fixed window otherwise.
func (r *Router) Tolerance() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tolerance()
}

func (r *Router) tolerance() time.Duration {
	if r.cfg.TempoRelative {
		return time.Minute / time.Duration(r.tempo*8)
	}
	return r.cfg.Tolerance
}

// ShouldTrigger reports whether note may sound on v at now and records the
// trigger when it may.
func (r *Router) ShouldTrigger(v Voice, note pitch.Note, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v = r.clampVoice(v)

	if r.fired[v] {
		last := r.last[v]
		if last.note == note.Midi && now.Sub(last.at) < r.tolerance() {
			return false
		}
	}
	r.last[v] = lastTrigger{note: note.Midi, at: now}
	r.fired[v] = true
	return true
}
