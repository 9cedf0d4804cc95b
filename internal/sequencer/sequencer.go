// Package sequencer drives dispensers from a 16-step pattern grid on a
// musical transport that runs independently of the physics clock.
//
// Ticks can be driven two ways: [Sequencer.Advance] accumulates frame time
// for headless or frame-locked use, and [Sequencer.Run] schedules ticks on
// its own goroutine against the wall clock. Either way, balls are requested
// through a [Spawner] that must tolerate calls from another goroutine.
package sequencer

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/event"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/synth"
)

const (
	Steps        = 16
	MinTempo     = 40
	MaxTempo     = 240
	DefaultTempo = 120

	DefaultSpawnOffset = 0.3
	DefaultJitter      = 0.02
	DefaultPercussive  = 0.6

	// maxCatchUp bounds the ticks one Advance call may fire after a stall.
	maxCatchUp = Steps
)

type Config struct {
	Tempo       int     `yaml:"tempo"`
	SpawnOffset float64 `yaml:"spawn_offset"`
	Jitter      float64 `yaml:"jitter"`
	Percussive  float64 `yaml:"percussive_intensity"`
	// BallLifetime is passed to spawned balls; zero leaves them to the
	// world's culling rules.
	BallLifetime float64 `yaml:"ball_lifetime"`
	Seed         int64   `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Tempo:       DefaultTempo,
		SpawnOffset: DefaultSpawnOffset,
		Jitter:      DefaultJitter,
		Percussive:  DefaultPercussive,
		Seed:        1,
	}
}

// Spawner accepts ball requests from the transport goroutine.
type Spawner interface {
	RequestBall(pos mgl64.Vec3, opts physics.BallOptions) dynamo.BodyID
}

type Pattern [Steps]bool

func (p Pattern) Active() int {
	n := 0
	for _, on := range p {
		if on {
			n++
		}
	}
	return n
}

type StepEvent struct {
	Step       int
	Tempo      int
	Dispensers []dynamo.BodyID
	Spawned    []dynamo.BodyID
}

type track struct {
	pos     mgl64.Vec3
	pattern Pattern
}

type firing struct {
	dispenser dynamo.BodyID
	pos       mgl64.Vec3
}

type Sequencer struct {
	mu       sync.Mutex
	cfg      Config
	tempo    int
	running  bool
	disposed bool
	cursor   int
	tracks   map[dynamo.BodyID]*track
	rng      *rand.Rand

	// frame transport
	elapsed float64
	due     float64

	spawner Spawner
	out     synth.Synthesizer
	logger  *slog.Logger
	now     func() time.Time
	steps   *event.Bus[StepEvent]
	kick    chan struct{}
	done    chan struct{}
}

func New(cfg Config, spawner Spawner, out synth.Synthesizer, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if out == nil {
		out = synth.Nop{}
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	cfg.Percussive = dynamo.Clamp(cfg.Percussive, 0, 1)

	s := &Sequencer{
		cfg:     cfg,
		tracks:  make(map[dynamo.BodyID]*track),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		spawner: spawner,
		out:     out,
		logger:  logger,
		now:     time.Now,
		steps:   event.NewBus[StepEvent](),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.tempo = ClampTempo(cfg.Tempo)
	return s
}

func (s *Sequencer) Steps() *event.Bus[StepEvent] { return s.steps }

func ClampTempo(bpm int) int {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}

func clampStep(step int) int {
	if step < 0 {
		return 0
	}
	if step >= Steps {
		return Steps - 1
	}
	return step
}

func (s *Sequencer) AddDispenser(id dynamo.BodyID, pos mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		t.pos = pos
		return
	}
	s.tracks[id] = &track{pos: pos}
}

func (s *Sequencer) RemoveDispenser(id dynamo.BodyID) {
	s.mu.Lock()
	delete(s.tracks, id)
	s.mu.Unlock()
}

func (s *Sequencer) MoveDispenser(id dynamo.BodyID, pos mgl64.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if ok {
		t.pos = pos
	}
	return ok
}

func (s *Sequencer) HasDispenser(id dynamo.BodyID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok
}

// Dispensers returns registered dispensers in id order.
func (s *Sequencer) Dispensers() []dynamo.BodyID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order()
}

func (s *Sequencer) order() []dynamo.BodyID {
	ids := make([]dynamo.BodyID, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ToggleStep flips one step and returns its new state. Unknown dispensers
// report false.
func (s *Sequencer) ToggleStep(id dynamo.BodyID, step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return false
	}
	step = clampStep(step)
	t.pattern[step] = !t.pattern[step]
	return t.pattern[step]
}

func (s *Sequencer) SetStep(id dynamo.BodyID, step int, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return false
	}
	t.pattern[clampStep(step)] = on
	return true
}

func (s *Sequencer) SetPattern(id dynamo.BodyID, p Pattern) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if ok {
		t.pattern = p
	}
	return ok
}

func (s *Sequencer) IsStepActive(id dynamo.BodyID, step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	return ok && t.pattern[clampStep(step)]
}

func (s *Sequencer) Pattern(id dynamo.BodyID) (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return Pattern{}, false
	}
	return t.pattern, true
}

// SetTempo clamps bpm to the supported range and returns the applied value.
// The interval already scheduled is not changed.
func (s *Sequencer) SetTempo(bpm int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo = ClampTempo(bpm)
	return s.tempo
}

func (s *Sequencer) Tempo() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// Interval is the length of one sixteenth note at the current tempo.
func (s *Sequencer) Interval() time.Duration {
	return interval(s.Tempo())
}

func interval(tempo int) time.Duration {
	return time.Minute / time.Duration(tempo*4)
}

func (s *Sequencer) Start() {
	s.mu.Lock()
	if s.running || s.disposed {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.elapsed = 0
	s.due = 0
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Stop halts the transport and rewinds the cursor to step 0.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	s.running = false
	s.cursor = 0
	s.mu.Unlock()
}

func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sequencer) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Tick plays the step under the cursor and moves the cursor on. It returns
// the step played, or -1 when the transport is stopped.
func (s *Sequencer) Tick() int {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return -1
	}
	step := s.cursor
	var fire []firing
	for _, id := range s.order() {
		t := s.tracks[id]
		if !t.pattern[step] {
			continue
		}
		fire = append(fire, firing{dispenser: id, pos: s.spawnPoint(t.pos)})
	}
	s.cursor = (s.cursor + 1) % Steps
	tempo := s.tempo
	s.mu.Unlock()

	ev := StepEvent{Step: step, Tempo: tempo}
	for _, f := range fire {
		ev.Dispensers = append(ev.Dispensers, f.dispenser)
		if s.spawner != nil {
			id := s.spawner.RequestBall(f.pos, physics.BallOptions{
				Lifetime: s.cfg.BallLifetime,
				Tags:     []string{"dispenser"},
			})
			if id != 0 {
				ev.Spawned = append(ev.Spawned, id)
			}
		}
		if err := s.out.PlayPercussive(s.cfg.Percussive); err != nil {
			s.logger.Warn("percussive playback failed", "step", step, "err", err)
		}
	}
	s.steps.Publish(ev)
	return step
}

// spawnPoint sits below the dispenser with a little horizontal jitter so
// consecutive balls do not stack exactly. Caller holds mu.
func (s *Sequencer) spawnPoint(pos mgl64.Vec3) mgl64.Vec3 {
	jx := (s.rng.Float64()*2 - 1) * s.cfg.Jitter
	jy := (s.rng.Float64()*2 - 1) * s.cfg.Jitter
	return mgl64.Vec3{pos.X() + jx, pos.Y() - s.cfg.SpawnOffset + jy, 0}
}

// Advance feeds dt seconds of frame time to the transport and fires every
// tick that came due. The first tick after Start is due immediately.
func (s *Sequencer) Advance(dt float64) int {
	if !dynamo.Finite(dt) || dt < 0 {
		dt = 0
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0
	}
	s.elapsed += dt
	s.mu.Unlock()

	n := 0
	for {
		s.mu.Lock()
		if !s.running || s.elapsed < s.due {
			s.mu.Unlock()
			return n
		}
		if n >= maxCatchUp {
			s.logger.Debug("transport fell behind, skipping ticks", "behind", s.elapsed-s.due)
			s.due = s.elapsed + interval(s.tempo).Seconds()
			s.mu.Unlock()
			return n
		}
		s.due += interval(s.tempo).Seconds()
		s.mu.Unlock()

		s.Tick()
		n++
	}
}

// Run drives the transport from the wall clock until ctx ends or the
// sequencer is disposed. Ticks are scheduled against absolute times so
// timer latency does not accumulate.
func (s *Sequencer) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	next := s.now()
	armed := false

	for {
		if armed {
			wait := next.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			next = s.now()
			armed = true
			continue
		case <-timer.C:
		}

		if s.Tick() < 0 {
			armed = false
			continue
		}
		next = next.Add(s.Interval())
		if behind := s.now().Sub(next); behind > s.Interval() {
			next = s.now()
		}
	}
}

// Dispose stops the transport, releases Run and drops every dispenser and
// step subscriber. It is safe to call more than once.
func (s *Sequencer) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.running = false
	s.cursor = 0
	s.tracks = make(map[dynamo.BodyID]*track)
	s.mu.Unlock()

	close(s.done)
	s.steps.Reset()
}
