package physics

import (
	"fmt"
	"slices"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/pitch"
)

// Collision categories. Balls only collide with walls and boundaries.
const (
	catWall     uint16 = 0x0001
	catBall     uint16 = 0x0002
	catBoundary uint16 = 0x0004
)

type BallOptions struct {
	Radius   float64
	Velocity mgl64.Vec3
	// Lifetime removes the ball after this many seconds; zero keeps it
	// until another culling rule applies.
	Lifetime float64
	Tags     []string
}

type BoundaryOptions struct {
	Start     mgl64.Vec3
	End       mgl64.Vec3
	Thickness float64
	// Ground boundaries expire balls that touch them after the grace period.
	Ground bool
}

// End selects a wall endpoint.
type End uint8

const (
	StartPoint End = iota
	EndPoint
)

// CreateBall adds a ball immediately, or at the end of the current step
// when called from a collision handler.
func (w *World) CreateBall(pos mgl64.Vec3, opts BallOptions) (dynamo.BodyID, error) {
	if err := validateBall(pos, opts); err != nil {
		return 0, err
	}
	id := w.allocID()
	w.later(func() {
		if err := w.createBall(id, pos, opts); err != nil {
			w.logger.Warn("create ball failed", "id", id, "err", err)
		}
	})
	return id, nil
}

// RequestBall queues a ball for the next step. Safe to call from any
// goroutine. Returns zero when the request queue is full.
func (w *World) RequestBall(pos mgl64.Vec3, opts BallOptions) dynamo.BodyID {
	if validateBall(pos, opts) != nil {
		return 0
	}
	id := w.allocID()
	if !w.spawns.Push(spawnRequest{id: id, pos: pos, opts: opts}) {
		w.logger.Debug("spawn queue full", "id", id)
		return 0
	}
	return id
}

// Pending is the number of queued ball requests.
func (w *World) Pending() int { return w.spawns.Len() }

func validateBall(pos mgl64.Vec3, opts BallOptions) error {
	if !dynamo.FiniteVec(pos) || !dynamo.FiniteVec(opts.Velocity) || !dynamo.Finite(opts.Radius) {
		return &dynamo.BodyError{Kind: dynamo.KindBall, Wrapped: dynamo.ErrInvalidState}
	}
	if opts.Radius < 0 {
		return &dynamo.BodyError{Kind: dynamo.KindBall, Wrapped: dynamo.ErrParameterBounds}
	}
	return nil
}

func (w *World) createBall(id dynamo.BodyID, pos mgl64.Vec3, opts BallOptions) error {
	radius := opts.Radius
	if radius == 0 {
		radius = w.cfg.BallRadius
	}

	bd := box2d.MakeB2BodyDef()
	bd.Type = box2d.B2BodyType.B2_dynamicBody
	bd.Position = vec2(pos)
	bd.LinearVelocity = vec2(opts.Velocity)
	bd.LinearDamping = w.cfg.LinearDamping
	bd.Bullet = w.cfg.ContinuousCollision
	body := w.solver.CreateBody(&bd)
	if body == nil {
		return &dynamo.BodyError{ID: id, Kind: dynamo.KindBall, Wrapped: fmt.Errorf("solver refused body")}
	}

	shape := box2d.MakeB2CircleShape()
	shape.M_radius = radius

	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Density = w.cfg.BallDensity
	fd.Friction = w.cfg.Ball.Friction
	fd.Restitution = w.cfg.Ball.Restitution
	fd.Filter.CategoryBits = catBall
	fd.Filter.MaskBits = catWall | catBoundary
	fix := body.CreateFixtureFromDef(&fd)
	body.SetUserData(id)

	w.bodies[id] = &entry{
		meta: Meta{ID: id, Kind: dynamo.KindBall, Ball: &Ball{
			Radius:   radius,
			Created:  w.time,
			Lifetime: opts.Lifetime,
			Damping:  w.cfg.LinearDamping,
			Tags:     append([]string(nil), opts.Tags...),
		}},
		body:    body,
		fixture: fix,
	}
	return nil
}

func (w *World) segment(start, end mgl64.Vec3, thickness float64) (Segment, error) {
	if !dynamo.FiniteVec(start) || !dynamo.FiniteVec(end) {
		return Segment{}, fmt.Errorf("%w: non-finite endpoint", dynamo.ErrDegenerateGeometry)
	}
	seg := newSegment(start, end, thickness)
	if seg.Length < w.cfg.MinWallLength {
		return Segment{}, fmt.Errorf("%w: length %.3f below minimum %.3f",
			dynamo.ErrDegenerateGeometry, seg.Length, w.cfg.MinWallLength)
	}
	return seg, nil
}

func (w *World) staticBody(id dynamo.BodyID) *box2d.B2Body {
	bd := box2d.MakeB2BodyDef()
	bd.Type = box2d.B2BodyType.B2_staticBody
	body := w.solver.CreateBody(&bd)
	if body != nil {
		body.SetUserData(id)
	}
	return body
}

// attach gives a static body an oriented box for seg. The body stays at the
// origin so reshaping only swaps the fixture.
func (w *World) attach(body *box2d.B2Body, seg Segment, category uint16) *box2d.B2Fixture {
	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBoxFromCenterAndAngle(seg.Length/2, seg.Thickness/2, vec2(seg.Center), seg.Angle)

	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Friction = w.cfg.Wall.Friction
	fd.Restitution = w.cfg.Wall.Restitution
	fd.Filter.CategoryBits = category
	fd.Filter.MaskBits = catBall
	return body.CreateFixtureFromDef(&fd)
}

// CreateWall adds a beam from start to end. Beams shorter than
// MinWallLength are rejected before anything is added.
func (w *World) CreateWall(start, end mgl64.Vec3) (dynamo.BodyID, error) {
	seg, err := w.segment(start, end, w.cfg.WallThickness)
	if err != nil {
		return 0, err
	}
	id := w.allocID()
	w.later(func() { w.addWall(id, seg) })
	return id, nil
}

func (w *World) addWall(id dynamo.BodyID, seg Segment) {
	note := w.cfg.Pitch.Map(seg.Length)
	body := w.staticBody(id)
	if body == nil {
		w.logger.Error("solver refused wall", "id", id)
		return
	}
	fix := w.attach(body, seg, catWall)

	w.bodies[id] = &entry{
		meta: Meta{ID: id, Kind: dynamo.KindWall, Wall: &Wall{
			Segment: seg,
			Note:    note,
			Color:   pitch.NoteToHex(note),
		}},
		body:    body,
		fixture: fix,
	}
	w.geometry.Publish(GeometryEvent{ID: id, Kind: dynamo.KindWall, Change: Created, Note: note, Length: seg.Length})
}

func (w *World) CreateBoundary(opts BoundaryOptions) (dynamo.BodyID, error) {
	thickness := opts.Thickness
	if thickness <= 0 {
		thickness = w.cfg.WallThickness
	}
	seg, err := w.segment(opts.Start, opts.End, thickness)
	if err != nil {
		return 0, err
	}
	id := w.allocID()
	w.later(func() {
		body := w.staticBody(id)
		if body == nil {
			w.logger.Error("solver refused boundary", "id", id)
			return
		}
		fix := w.attach(body, seg, catBoundary)
		w.bodies[id] = &entry{
			meta:    Meta{ID: id, Kind: dynamo.KindBoundary, Boundary: &Boundary{Segment: seg, Ground: opts.Ground}},
			body:    body,
			fixture: fix,
		}
		w.geometry.Publish(GeometryEvent{ID: id, Kind: dynamo.KindBoundary, Change: Created, Length: seg.Length})
	})
	return id, nil
}

func (w *World) CreateDispenser(pos mgl64.Vec3) (dynamo.BodyID, error) {
	if !dynamo.FiniteVec(pos) {
		return 0, fmt.Errorf("%w: non-finite dispenser position", dynamo.ErrDegenerateGeometry)
	}
	id := w.allocID()
	w.later(func() {
		w.bodies[id] = &entry{meta: Meta{ID: id, Kind: dynamo.KindDispenser, Dispenser: &Dispenser{Position: dynamo.Flat(pos)}}}
		w.geometry.Publish(GeometryEvent{ID: id, Kind: dynamo.KindDispenser, Change: Created})
	})
	return id, nil
}

func (w *World) MoveDispenser(id dynamo.BodyID, pos mgl64.Vec3) error {
	e, ok := w.bodies[id]
	if !ok {
		return &dynamo.BodyError{ID: id, Wrapped: dynamo.ErrUnknownBody}
	}
	if e.meta.Kind != dynamo.KindDispenser {
		return &dynamo.BodyError{ID: id, Kind: e.meta.Kind, Wrapped: dynamo.ErrWrongKind}
	}
	if !dynamo.FiniteVec(pos) {
		return &dynamo.BodyError{ID: id, Kind: e.meta.Kind, Wrapped: dynamo.ErrDegenerateGeometry}
	}
	e.meta.Dispenser.Position = dynamo.Flat(pos)
	w.geometry.Publish(GeometryEvent{ID: id, Kind: dynamo.KindDispenser, Change: Moved})
	return nil
}

// UpdateWallEndpoint moves one end of a beam. The beam keeps its body and
// id; only the fixture is replaced, and its note is recomputed from the new
// length. A move that would make the beam degenerate is rejected and the
// beam is left unchanged.
func (w *World) UpdateWallEndpoint(id dynamo.BodyID, which End, point mgl64.Vec3) error {
	e, ok := w.bodies[id]
	if !ok {
		return &dynamo.BodyError{ID: id, Wrapped: dynamo.ErrUnknownBody}
	}
	if e.meta.Kind != dynamo.KindWall {
		return &dynamo.BodyError{ID: id, Kind: e.meta.Kind, Wrapped: dynamo.ErrWrongKind}
	}

	start, end := e.meta.Wall.Start, e.meta.Wall.End
	if which == StartPoint {
		start = point
	} else {
		end = point
	}
	seg, err := w.segment(start, end, e.meta.Wall.Thickness)
	if err != nil {
		return &dynamo.BodyError{ID: id, Kind: dynamo.KindWall, Wrapped: err}
	}

	w.later(func() { w.reshapeWall(id, seg) })
	return nil
}

func (w *World) reshapeWall(id dynamo.BodyID, seg Segment) {
	e, ok := w.bodies[id]
	if !ok || e.meta.Kind != dynamo.KindWall {
		return
	}
	e.body.DestroyFixture(e.fixture)
	e.fixture = w.attach(e.body, seg, catWall)

	note := w.cfg.Pitch.Map(seg.Length)
	e.meta.Wall.Segment = seg
	e.meta.Wall.Note = note
	e.meta.Wall.Color = pitch.NoteToHex(note)

	w.wakeBalls()
	w.geometry.Publish(GeometryEvent{ID: id, Kind: dynamo.KindWall, Change: Resized, Note: note, Length: seg.Length})
}

// RemoveBody deletes a body of any kind.
func (w *World) RemoveBody(id dynamo.BodyID) error {
	if _, ok := w.bodies[id]; !ok {
		return &dynamo.BodyError{ID: id, Wrapped: dynamo.ErrUnknownBody}
	}
	w.later(func() { w.remove(id, ReasonDeleted) })
	return nil
}

func (w *World) remove(id dynamo.BodyID, reason Reason) {
	e, ok := w.bodies[id]
	if !ok {
		return
	}
	if e.body != nil {
		w.solver.DestroyBody(e.body)
	}
	delete(w.bodies, id)

	kind := e.meta.Kind
	if kind != dynamo.KindBall {
		w.geometry.Publish(GeometryEvent{ID: id, Kind: kind, Change: Removed})
	}
	w.removals.Publish(Removal{ID: id, Kind: kind, Reason: reason, Time: w.time})
}

// Clear removes every body and discards queued ball requests.
func (w *World) Clear() {
	w.later(func() {
		w.spawns.Drain()
		for _, id := range w.ids() {
			w.remove(id, ReasonCleared)
		}
	})
}

func (w *World) ids() []dynamo.BodyID {
	ids := make([]dynamo.BodyID, 0, len(w.bodies))
	for id := range w.bodies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
