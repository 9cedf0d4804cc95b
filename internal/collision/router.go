// Package collision turns physics contact events into playback requests.
package collision

import (
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/voice"
)

const (
	DefaultVelocityScale = 10.0
	DefaultMinIntensity  = 0.02
)

type Config struct {
	// VelocityScale is the impact speed that maps to full intensity.
	VelocityScale float64 `yaml:"velocity_scale"`
	// MinIntensity drops grazing contacts below this intensity.
	MinIntensity float64 `yaml:"min_intensity"`
}

func DefaultConfig() Config {
	return Config{VelocityScale: DefaultVelocityScale, MinIntensity: DefaultMinIntensity}
}

type Stats struct {
	Routed     int64 `json:"routed"`
	Suppressed int64 `json:"suppressed"`
	Ignored    int64 `json:"ignored"`
}

// Trigger describes one accepted collision, for observers such as run
// storage.
type Trigger struct {
	Geometry  dynamo.BodyID
	Voice     voice.Voice
	Note      pitch.Note
	Intensity float64
	At        time.Time
	Bound     bool
}

type Router struct {
	cfg    Config
	voices *voice.Router
	out    *synth.Guard
	now    func() time.Time
	// base, when set, stamps each contact at base plus its simulated time.
	base   *time.Time
	logger *slog.Logger

	onTrigger func(Trigger)

	routed     atomic.Int64
	suppressed atomic.Int64
	ignored    atomic.Int64
}

type Option func(*Router)

// WithClock sets the time source used for duplicate suppression.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithEventTime suppresses duplicates on the contacts' own simulated time,
// offset from base, so the outcome does not depend on the frame size.
func WithEventTime(base time.Time) Option {
	return func(r *Router) { r.base = &base }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// OnTrigger registers fn to run after each accepted request.
func OnTrigger(fn func(Trigger)) Option {
	return func(r *Router) { r.onTrigger = fn }
}

// New builds a router. The output should already be guarded; a bare
// backend is wrapped in an open synth.Guard.
func New(voices *voice.Router, out synth.Synthesizer, cfg Config, opts ...Option) *Router {
	if cfg.VelocityScale <= 0 || math.IsNaN(cfg.VelocityScale) {
		cfg.VelocityScale = DefaultVelocityScale
	}
	if cfg.MinIntensity < 0 {
		cfg.MinIntensity = 0
	}
	r := &Router{
		cfg:    cfg,
		voices: voices,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	guard, ok := out.(*synth.Guard)
	if !ok {
		guard = synth.NewGuard(out, nil, r.logger)
	}
	r.out = guard
	return r
}

// Intensity maps an impact speed onto [0, 1].
func (r *Router) Intensity(impact float64) float64 {
	if !dynamo.Finite(impact) {
		return 0
	}
	return dynamo.Clamp(math.Abs(impact)/r.cfg.VelocityScale, 0, 1)
}

// OnCollision routes one contact. It never returns an error and never
// panics into the caller.
func (r *Router) OnCollision(ev physics.CollisionEvent) {
	if ev.KindA == dynamo.KindBall && ev.KindB == dynamo.KindBall {
		r.ignored.Add(1)
		return
	}

	intensity := r.Intensity(ev.ImpactVelocity)
	if intensity < r.cfg.MinIntensity {
		r.ignored.Add(1)
		return
	}

	geometry, binding, bound := r.binding(ev)
	v := voice.DefaultVoice
	note := pitch.IntensityNote(intensity)
	if bound {
		v, note = binding.Voice, binding.Note
	}

	req := synth.NoteRequest{
		Voice:    v,
		Note:     note,
		Duration: r.voices.Sixteenth(),
		Velocity: intensity,
	}
	// A request dropped for readiness leaves the debounce state alone.
	if !r.out.Gate().Ready() {
		r.out.PlayNote(req)
		return
	}

	now := r.stamp(ev)
	if !r.voices.ShouldTrigger(v, note, now) {
		r.suppressed.Add(1)
		return
	}

	r.out.PlayNote(req)
	r.routed.Add(1)

	if r.onTrigger != nil {
		r.onTrigger(Trigger{Geometry: geometry, Voice: v, Note: note, Intensity: intensity, At: now, Bound: bound})
	}
}

func (r *Router) stamp(ev physics.CollisionEvent) time.Time {
	if r.base != nil && dynamo.Finite(ev.Time) {
		return r.base.Add(time.Duration(ev.Time * float64(time.Second)))
	}
	return r.now()
}

// binding returns whichever side of the contact carries a voice binding,
// preferring A.
func (r *Router) binding(ev physics.CollisionEvent) (dynamo.BodyID, voice.Binding, bool) {
	if b, ok := r.voices.Binding(ev.A); ok {
		return ev.A, b, true
	}
	if b, ok := r.voices.Binding(ev.B); ok {
		return ev.B, b, true
	}
	if ev.KindA != dynamo.KindBall {
		return ev.A, voice.Binding{}, false
	}
	return ev.B, voice.Binding{}, false
}

func (r *Router) Stats() Stats {
	return Stats{
		Routed:     r.routed.Load(),
		Suppressed: r.suppressed.Load(),
		Ignored:    r.ignored.Load(),
	}
}
