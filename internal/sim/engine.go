package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/collision"
	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/event"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/selection"
	"github.com/san-kum/bounce/internal/sequencer"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/voice"
)

// maxRecords caps the trigger and step history kept for a Result.
const maxRecords = 1 << 16

// epoch anchors simulated contact times for the collision router.
var epoch = time.Unix(0, 0).UTC()

// Engine owns one scene: the physics world, the voice and collision
// routers, the sequencer and the selection controller. Frame, LoadScene and
// the selection gestures must be called from a single goroutine; the
// sequencer may run on its own goroutine via RunRealtime or StartTransport.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	world     *physics.World
	voices    *voice.Router
	router    *collision.Router
	seq       *sequencer.Sequencer
	selection *selection.Controller
	guard     *synth.Guard
	gate      *synth.Gate

	metrics   []dynamo.Metric
	observers []dynamo.Observer

	frames    int
	simTime   atomic.Uint64
	wallClock bool
	realtime  atomic.Bool
	spawned   atomic.Int64

	recMu    sync.Mutex
	notes    *event.Bus[TriggerRecord]
	triggers []TriggerRecord
	steps    []StepRecord
	removed  map[string]int64

	scene    config.Scene
	unsubs   []func()
	disposed bool
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithGate holds playback until the gate opens, for backends that need a
// user gesture or device start first.
func WithGate(g *synth.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

func WithMetrics(ms ...dynamo.Metric) Option {
	return func(e *Engine) { e.metrics = append(e.metrics, ms...) }
}

func WithObserver(o dynamo.Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithWallClock suppresses duplicate triggers against wall time instead of
// simulation time. Interactive front ends use it.
func WithWallClock() Option {
	return func(e *Engine) { e.wallClock = true }
}

func New(cfg *config.Config, out synth.Synthesizer, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := *cfg
	c.Validate()

	e := &Engine{
		cfg:     c,
		logger:  slog.New(slog.DiscardHandler),
		removed: make(map[string]int64),
		notes:   event.NewBus[TriggerRecord](),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.guard = synth.NewGuard(out, e.gate, e.logger.With("component", "synth"))
	e.world = physics.NewWorld(c.Physics, e.logger.With("component", "physics"))
	e.voices = voice.NewRouter(c.Voice)
	stamp := collision.WithEventTime(epoch)
	if e.wallClock {
		stamp = collision.WithClock(time.Now)
	}
	e.router = collision.New(e.voices, e.guard, c.Collision,
		stamp,
		collision.WithLogger(e.logger.With("component", "collision")),
		collision.OnTrigger(e.recordTrigger),
	)
	e.seq = sequencer.New(c.Sequencer, e.world, e.guard, e.logger.With("component", "sequencer"))
	e.voices.SetTempo(e.seq.Tempo())
	e.selection = selection.New(c.Selection, e.world, e.unregister)

	e.unsubs = append(e.unsubs,
		e.world.Collisions().Subscribe(e.router.OnCollision),
		e.world.Geometry().Subscribe(e.onGeometry),
		e.world.Removals().Subscribe(e.onRemoval),
		e.seq.Steps().Subscribe(e.onStep),
	)
	return e
}

func (e *Engine) Config() config.Config                              { return e.cfg }
func (e *Engine) World() *physics.World                              { return e.world }
func (e *Engine) Voices() *voice.Router                              { return e.voices }
func (e *Engine) Router() *collision.Router                          { return e.router }
func (e *Engine) Sequencer() *sequencer.Sequencer                    { return e.seq }
func (e *Engine) Selection() *selection.Controller                   { return e.selection }
func (e *Engine) Guard() *synth.Guard                                { return e.guard }
func (e *Engine) Frames() int                                        { return e.frames }
func (e *Engine) Logger() *slog.Logger                               { return e.logger }
func (e *Engine) AddMetric(m dynamo.Metric)                          { e.metrics = append(e.metrics, m) }
func (e *Engine) AddObserver(o dynamo.Observer)                      { e.observers = append(e.observers, o) }
func (e *Engine) Time() float64                                      { return math.Float64frombits(e.simTime.Load()) }
func (e *Engine) Snapshot() dynamo.Snapshot                          { return e.world.Snapshot() }
func (e *Engine) Disposed() bool                                     { return e.disposed }
func (e *Engine) SetViewport(r *dynamo.Rect)                         { e.world.SetViewport(r) }
func (e *Engine) Pattern(id dynamo.BodyID) (sequencer.Pattern, bool) { return e.seq.Pattern(id) }

// Triggers publishes every accepted collision as it is recorded.
func (e *Engine) Triggers() *event.Bus[TriggerRecord] { return e.notes }

// SetTempo changes the shared tempo and returns the clamped value.
func (e *Engine) SetTempo(bpm int) int {
	t := e.seq.SetTempo(bpm)
	e.voices.SetTempo(t)
	e.scene.Tempo = t
	return t
}

func (e *Engine) Tempo() int { return e.seq.Tempo() }

// Frame advances one rendered frame: the physics step, then observers and
// metrics on the new snapshot, then the frame-driven transport.
func (e *Engine) Frame(delta float64) dynamo.Snapshot {
	if e.disposed {
		return dynamo.Snapshot{Frame: e.frames, Time: e.Time()}
	}
	e.world.Step(delta)
	e.simTime.Store(math.Float64bits(e.world.Time()))

	snap := e.world.Snapshot()
	snap.Frame = e.frames
	for _, m := range e.metrics {
		m.Observe(snap)
	}
	for _, o := range e.observers {
		o.OnFrame(snap)
	}

	if !e.realtime.Load() {
		e.seq.Advance(delta)
	}
	e.frames++
	return snap
}

// Run drives the engine headless at a fixed frame rate for the configured
// duration.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if e.disposed {
		return nil, dynamo.ErrDisposed
	}

	for _, m := range e.metrics {
		m.Reset()
	}

	dt := 1.0 / float64(cfg.FPS)
	frames := cfg.frames()
	for i := 0; i < frames; i++ {
		select {
		case <-ctx.Done():
			return e.result(), ctx.Err()
		default:
		}
		e.Frame(dt)
	}
	return e.result(), nil
}

// Result collects metrics, triggers and counters recorded so far.
func (e *Engine) Result() *Result { return e.result() }

func (e *Engine) result() *Result {
	res := &Result{
		Frames:  e.frames,
		Time:    e.Time(),
		Metrics: make(map[string]float64, len(e.metrics)),
		Stats: Stats{
			Collision: e.router.Stats(),
			Synth:     e.guard.Stats(),
			Spawned:   e.spawned.Load(),
			Removed:   make(map[string]int64),
		},
	}
	for _, m := range e.metrics {
		res.Metrics[m.Name()] = m.Value()
	}

	e.recMu.Lock()
	res.Triggers = append([]TriggerRecord(nil), e.triggers...)
	res.Steps = append([]StepRecord(nil), e.steps...)
	for k, v := range e.removed {
		res.Stats.Removed[k] = v
	}
	e.recMu.Unlock()
	return res
}

// StartTransport moves the sequencer onto its own wall-clock goroutine.
// Frame stops advancing it from then on.
func (e *Engine) StartTransport(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	if e.disposed || !e.realtime.CompareAndSwap(false, true) {
		close(errc)
		return errc
	}
	go func() {
		defer close(errc)
		if err := e.seq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()
	return errc
}

// RunRealtime runs the transport on its own goroutine and steps physics at
// fps against the wall clock until ctx ends.
func (e *Engine) RunRealtime(ctx context.Context, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", fps)
	}
	if e.disposed {
		return dynamo.ErrDisposed
	}
	transport := e.StartTransport(ctx)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			if transport != nil {
				<-transport
			}
			return ctx.Err()
		case err := <-transport:
			if err != nil {
				return err
			}
			transport = nil
		case now := <-ticker.C:
			e.Frame(now.Sub(last).Seconds())
			last = now
		}
	}
}

// LoadScene replaces the current bodies with the scene. Invalid pieces are
// skipped and reported together; the rest of the scene still loads.
func (e *Engine) LoadScene(scene config.Scene) error {
	if e.disposed {
		return dynamo.ErrDisposed
	}
	e.seq.Stop()
	e.selection.Escape()
	e.world.Clear()
	e.voices.Clear()

	e.world.SetViewport(scene.Viewport)
	if scene.Tempo == 0 {
		scene.Tempo = e.seq.Tempo()
	}
	scene.Tempo = e.SetTempo(scene.Tempo)

	var errs []error
	for i, b := range scene.Boundaries {
		_, err := e.world.CreateBoundary(physics.BoundaryOptions{
			Start:     b.From.Vec3(),
			End:       b.To.Vec3(),
			Thickness: b.Thickness,
			Ground:    b.Ground,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("boundary %d: %w", i, err))
		}
	}
	for i, w := range scene.Walls {
		if _, err := e.world.CreateWall(w.From.Vec3(), w.To.Vec3()); err != nil {
			errs = append(errs, fmt.Errorf("wall %d: %w", i, err))
		}
	}
	for i, d := range scene.Dispensers {
		id, err := e.world.CreateDispenser(d.At.Vec3())
		if err != nil {
			errs = append(errs, fmt.Errorf("dispenser %d: %w", i, err))
			continue
		}
		e.seq.SetPattern(id, config.ParsePattern(d.Pattern))
	}

	e.scene = scene
	if scene.AutoStart {
		e.seq.Start()
	}

	err := errors.Join(errs...)
	if err != nil {
		e.logger.Warn("scene loaded with errors", "scene", scene.Name, "err", err)
	} else {
		e.logger.Info("scene loaded", "scene", scene.Name, "walls", len(scene.Walls), "dispensers", len(scene.Dispensers))
	}
	return err
}

// Scene describes the bodies currently in the world, for saving and export.
func (e *Engine) Scene() config.Scene {
	s := config.Scene{
		Name:      e.scene.Name,
		Tempo:     e.seq.Tempo(),
		Viewport:  e.scene.Viewport,
		AutoStart: e.seq.Running(),
	}
	for _, b := range e.world.Snapshot().Bodies {
		m, ok := e.world.Meta(b.ID)
		if !ok {
			continue
		}
		switch b.Kind {
		case dynamo.KindWall:
			s.Walls = append(s.Walls, config.WallSpec{From: point(m.Wall.Start), To: point(m.Wall.End)})
		case dynamo.KindBoundary:
			s.Boundaries = append(s.Boundaries, config.BoundarySpec{
				From:      point(m.Boundary.Start),
				To:        point(m.Boundary.End),
				Thickness: m.Boundary.Thickness,
				Ground:    m.Boundary.Ground,
			})
		case dynamo.KindDispenser:
			p, _ := e.seq.Pattern(b.ID)
			s.Dispensers = append(s.Dispensers, config.DispenserSpec{
				At:      point(m.Dispenser.Position),
				Pattern: config.FormatPattern(p),
			})
		}
	}
	return s
}

func point(v mgl64.Vec3) config.Point { return config.Point{v.X(), v.Y()} }

// Dispose stops the sequencer, removes every body and clears the voice
// bindings, in that order. It is safe to call more than once.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.seq.Dispose()
	e.world.Clear()
	e.voices.Clear()
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil
	e.disposed = true
}

func (e *Engine) onGeometry(ev physics.GeometryEvent) {
	switch ev.Change {
	case physics.Created:
		switch ev.Kind {
		case dynamo.KindWall:
			e.voices.Assign(ev.ID, e.voices.NextVoice(), ev.Note)
		case dynamo.KindDispenser:
			if m, ok := e.world.Meta(ev.ID); ok {
				e.seq.AddDispenser(ev.ID, m.Dispenser.Position)
			}
		}
	case physics.Resized:
		e.voices.Retune(ev.ID, ev.Note)
	case physics.Moved:
		if m, ok := e.world.Meta(ev.ID); ok && m.Dispenser != nil {
			e.seq.MoveDispenser(ev.ID, m.Dispenser.Position)
		}
	case physics.Removed:
		e.unregister(ev.ID)
		e.selection.Forget(ev.ID)
	}
}

func (e *Engine) unregister(id dynamo.BodyID) {
	e.voices.Unassign(id)
	e.seq.RemoveDispenser(id)
}

func (e *Engine) onRemoval(r physics.Removal) {
	e.recMu.Lock()
	e.removed[r.Reason.String()]++
	e.recMu.Unlock()
}

func (e *Engine) onStep(ev sequencer.StepEvent) {
	if len(ev.Spawned) == 0 {
		return
	}
	e.spawned.Add(int64(len(ev.Spawned)))

	e.recMu.Lock()
	if len(e.steps) < maxRecords {
		e.steps = append(e.steps, StepRecord{Time: e.Time(), Step: ev.Step, Spawned: len(ev.Spawned)})
	}
	e.recMu.Unlock()
}

func (e *Engine) recordTrigger(t collision.Trigger) {
	rec := TriggerRecord{
		Time:      t.At.Sub(epoch).Seconds(),
		Geometry:  t.Geometry,
		Voice:     int(t.Voice),
		Midi:      t.Note.Midi,
		Note:      t.Note.Name,
		Frequency: t.Note.Frequency,
		Intensity: t.Intensity,
		Bound:     t.Bound,
	}
	if e.wallClock {
		rec.Time = e.Time()
	}

	e.recMu.Lock()
	if len(e.triggers) < maxRecords {
		e.triggers = append(e.triggers, rec)
	}
	e.recMu.Unlock()
	e.notes.Publish(rec)
}
