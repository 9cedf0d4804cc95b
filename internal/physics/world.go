package physics

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/event"
)

const accumulatorEpsilon = 1e-9

type World struct {
	cfg    Config
	logger *slog.Logger
	solver box2d.B2World

	bodies map[dynamo.BodyID]*entry
	nextID atomic.Uint32

	time        float64
	accumulator float64
	steps       int
	stepping    bool
	subTime     float64
	deferred    []func()
	contacts    []CollisionEvent
	viewport    *dynamo.Rect

	spawns     *event.Mailbox[spawnRequest]
	collisions *event.Bus[CollisionEvent]
	geometry   *event.Bus[GeometryEvent]
	removals   *event.Bus[Removal]
}

type spawnRequest struct {
	id   dynamo.BodyID
	pos  mgl64.Vec3
	opts BallOptions
}

func NewWorld(cfg Config, logger *slog.Logger) *World {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w := &World{
		cfg:        cfg,
		logger:     logger,
		solver:     box2d.MakeB2World(box2d.MakeB2Vec2(0, cfg.Gravity)),
		bodies:     make(map[dynamo.BodyID]*entry),
		spawns:     event.NewMailbox[spawnRequest](cfg.MaxPending),
		collisions: event.NewBus[CollisionEvent](),
		geometry:   event.NewBus[GeometryEvent](),
		removals:   event.NewBus[Removal](),
	}
	w.solver.M_continuousPhysics = cfg.ContinuousCollision
	// box2d ignores category and mask bits unless a filter is installed.
	w.solver.SetContactFilter(&box2d.B2ContactFilter{})
	w.solver.SetContactListener(&contactListener{w: w})
	return w
}

func (w *World) Config() Config { return w.cfg }

func (w *World) Collisions() *event.Bus[CollisionEvent] { return w.collisions }
func (w *World) Geometry() *event.Bus[GeometryEvent]    { return w.geometry }
func (w *World) Removals() *event.Bus[Removal]          { return w.removals }

// Time is the simulated time in seconds.
func (w *World) Time() float64 { return w.time }

// Steps is the number of fixed steps taken so far.
func (w *World) Steps() int { return w.steps }

// SetViewport enables culling of balls outside r. Nil disables it.
func (w *World) SetViewport(r *dynamo.Rect) {
	if r == nil {
		w.viewport = nil
		return
	}
	v := *r
	w.viewport = &v
}

func (w *World) allocID() dynamo.BodyID {
	return dynamo.BodyID(w.nextID.Add(1))
}

// Step advances the simulation by a frame delta and returns the number of
// fixed steps taken. Deltas are capped at MaxFrameDelta; negative or
// non-finite deltas count as zero.
func (w *World) Step(delta float64) int {
	if w.stepping {
		return 0
	}
	if !dynamo.Finite(delta) || delta < 0 {
		delta = 0
	}
	delta = math.Min(delta, w.cfg.MaxFrameDelta)

	w.drainSpawns()
	w.accumulator += delta

	n := 0
	for w.accumulator+accumulatorEpsilon >= w.cfg.FixedStep {
		w.accumulator -= w.cfg.FixedStep
		w.fixedStep()
		n++
	}
	if w.accumulator < 0 {
		w.accumulator = 0
	}
	return n
}

// Tick runs exactly one fixed step, bypassing the accumulator.
func (w *World) Tick() {
	if w.stepping {
		return
	}
	w.drainSpawns()
	w.fixedStep()
}

// Alpha is the fraction of a fixed step left in the accumulator, for
// renderers that interpolate.
func (w *World) Alpha() float64 {
	return w.accumulator / w.cfg.FixedStep
}

func (w *World) fixedStep() {
	sub := 1
	if w.cfg.SubSteps > 1 && (w.cfg.SubStepSpeed <= 0 || w.maxBallSpeed() > w.cfg.SubStepSpeed) {
		sub = w.cfg.SubSteps
	}
	dt := w.cfg.FixedStep / float64(sub)

	w.stepping = true
	for i := 0; i < sub; i++ {
		w.subTime = w.time + float64(i+1)*dt
		if err := w.solve(dt); err != nil {
			w.logger.Error("solver step failed", "time", w.subTime, "err", err)
			break
		}
	}
	w.stepping = false
	w.time += w.cfg.FixedStep
	w.steps++

	w.publishContacts()
	w.runDeferred()
	w.maintainBalls()
	w.sweep()
}

func (w *World) solve(dt float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", dynamo.ErrInvalidState, r)
		}
	}()
	w.solver.Step(dt, w.cfg.Contact.VelocityIterations, w.cfg.Contact.PositionIterations)
	return nil
}

func (w *World) maxBallSpeed() float64 {
	fastest := 0.0
	for _, e := range w.bodies {
		if e.meta.Kind != dynamo.KindBall || e.body == nil {
			continue
		}
		v := e.body.GetLinearVelocity()
		if s := math.Hypot(v.X, v.Y); s > fastest {
			fastest = s
		}
	}
	return fastest
}

// later queues fn when the solver is stepping and runs it immediately
// otherwise.
func (w *World) later(fn func()) {
	if w.stepping {
		w.deferred = append(w.deferred, fn)
		return
	}
	fn()
}

func (w *World) runDeferred() {
	for len(w.deferred) > 0 {
		ops := w.deferred
		w.deferred = nil
		for _, fn := range ops {
			fn()
		}
	}
}

func (w *World) publishContacts() {
	if len(w.contacts) == 0 {
		return
	}
	events := w.contacts
	w.contacts = nil
	for _, ev := range events {
		w.collisions.Publish(ev)
	}
}

func (w *World) drainSpawns() {
	for _, req := range w.spawns.Drain() {
		if err := w.createBall(req.id, req.pos, req.opts); err != nil {
			w.logger.Warn("spawn rejected", "id", req.id, "err", err)
		}
	}
}

// Len returns the number of live bodies of kind k.
func (w *World) Len(k dynamo.Kind) int {
	n := 0
	for _, e := range w.bodies {
		if e.meta.Kind == k {
			n++
		}
	}
	return n
}

func (w *World) Meta(id dynamo.BodyID) (Meta, bool) {
	e, ok := w.bodies[id]
	if !ok {
		return Meta{}, false
	}
	return e.meta.clone(), true
}

// Kind reports the kind of a live body.
func (w *World) Kind(id dynamo.BodyID) (dynamo.Kind, bool) {
	e, ok := w.bodies[id]
	if !ok {
		return 0, false
	}
	return e.meta.Kind, true
}

func (w *World) wakeBalls() {
	for _, e := range w.bodies {
		if e.meta.Kind == dynamo.KindBall && e.body != nil {
			e.body.SetAwake(true)
		}
	}
}
