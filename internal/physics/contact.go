package physics

import (
	"math"

	"github.com/ByteArena/box2d"

	"github.com/san-kum/bounce/internal/dynamo"
)

// contactListener receives solver callbacks while the world is locked. It
// only records; everything it learns is acted on after the step.
type contactListener struct {
	w *World
}

func (l *contactListener) lookup(f *box2d.B2Fixture) (*entry, bool) {
	if f == nil {
		return nil, false
	}
	body := f.GetBody()
	if body == nil {
		return nil, false
	}
	id, ok := body.GetUserData().(dynamo.BodyID)
	if !ok {
		return nil, false
	}
	e, ok := l.w.bodies[id]
	return e, ok
}

func (l *contactListener) pair(c box2d.B2ContactInterface) (*entry, *entry, bool) {
	a, okA := l.lookup(c.GetFixtureA())
	b, okB := l.lookup(c.GetFixtureB())
	return a, b, okA && okB
}

func (l *contactListener) BeginContact(c box2d.B2ContactInterface) {
	a, b, ok := l.pair(c)
	if !ok {
		return
	}

	var wm box2d.B2WorldManifold
	c.GetWorldManifold(&wm)
	n := wm.Normal

	va := a.body.GetLinearVelocity()
	vb := b.body.GetLinearVelocity()
	rel := (vb.X-va.X)*n.X + (vb.Y-va.Y)*n.Y

	l.w.contacts = append(l.w.contacts, CollisionEvent{
		A:              a.meta.ID,
		B:              b.meta.ID,
		KindA:          a.meta.Kind,
		KindB:          b.meta.Kind,
		ImpactVelocity: math.Abs(rel),
		Normal:         vec3(n),
		Point:          vec3(wm.Points[0]),
		Time:           l.w.subTime,
	})

	l.ground(a, b)
	l.ground(b, a)
}

// ground starts the removal grace period for a ball touching the ground.
func (l *contactListener) ground(ball, other *entry) {
	if ball.meta.Kind != dynamo.KindBall || other.meta.Kind != dynamo.KindBoundary {
		return
	}
	if !other.meta.Boundary.Ground || ball.meta.Ball.Grounded {
		return
	}
	ball.meta.Ball.Grounded = true
	deadline := l.w.subTime + l.w.cfg.GroundGrace
	if ball.meta.Ball.RemoveAfter == 0 || deadline < ball.meta.Ball.RemoveAfter {
		ball.meta.Ball.RemoveAfter = deadline
	}
}

func (l *contactListener) EndContact(c box2d.B2ContactInterface) {}

// PreSolve swaps in the contact material for ball contacts so the pair can
// be bouncier than either material alone.
func (l *contactListener) PreSolve(c box2d.B2ContactInterface, oldManifold box2d.B2Manifold) {
	a, b, ok := l.pair(c)
	if !ok {
		return
	}
	if (a.meta.Kind == dynamo.KindBall) == (b.meta.Kind == dynamo.KindBall) {
		return
	}
	c.SetRestitution(l.w.cfg.Contact.Restitution)
	c.SetFriction(l.w.cfg.Contact.Friction)
}

func (l *contactListener) PostSolve(c box2d.B2ContactInterface, impulse *box2d.B2ContactImpulse) {}
