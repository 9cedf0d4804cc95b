package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/bounce/internal/dynamo"
)

// settleSeed is the damping a settling ball starts ramping from when its
// baseline is zero.
const settleSeed = 0.05

// maintainBalls applies per-step damping and settling, and removes balls
// whose state is no longer finite. A failure in one ball never stops the
// others from being updated.
func (w *World) maintainBalls() {
	for _, id := range w.ids() {
		e := w.bodies[id]
		if e.meta.Kind != dynamo.KindBall {
			continue
		}
		if err := w.maintainBall(e); err != nil {
			w.logger.Error("removing ball", "id", id, "err", err)
			reason := ReasonFault
			if errors.Is(err, dynamo.ErrInvalidState) {
				reason = ReasonInvalid
			}
			w.remove(id, reason)
		}
	}
}

func (w *World) maintainBall(e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &dynamo.BodyError{ID: e.meta.ID, Kind: dynamo.KindBall, Wrapped: fmt.Errorf("update panic: %v", r)}
		}
	}()

	pos := e.body.GetPosition()
	vel := e.body.GetLinearVelocity()
	if !dynamo.Finite(pos.X, pos.Y, vel.X, vel.Y) {
		return &dynamo.BodyError{ID: e.meta.ID, Kind: dynamo.KindBall, Wrapped: dynamo.ErrInvalidState}
	}

	vel.X *= w.cfg.BallDamping
	vel.Y *= w.cfg.BallDamping
	e.body.SetLinearVelocity(vel)

	b := e.meta.Ball
	speedSq := vel.X*vel.X + vel.Y*vel.Y
	if speedSq < w.cfg.SettleSpeedSq {
		d := math.Min(math.Max(b.Damping, settleSeed)*w.cfg.SettleRamp, w.cfg.SettleMaxDamping)
		if d != b.Damping {
			b.Damping = d
			e.body.SetLinearDamping(d)
		}
	} else if b.Damping != w.cfg.LinearDamping {
		b.Damping = w.cfg.LinearDamping
		e.body.SetLinearDamping(b.Damping)
	}
	return nil
}

// cullReason reports why a ball should leave the world, if it should.
func (w *World) cullReason(e *entry) (Reason, bool) {
	b := e.meta.Ball
	pos := vec3(e.body.GetPosition())

	switch {
	case pos.Y() < w.cfg.FloorY:
		return ReasonFloor, true
	case b.RemoveAfter > 0 && w.time >= b.RemoveAfter:
		return ReasonGround, true
	case b.Lifetime > 0 && w.time-b.Created >= b.Lifetime:
		return ReasonLifetime, true
	case w.viewport != nil && !w.viewport.Contains(pos, w.cfg.ViewportMargin):
		return ReasonViewport, true
	}
	return 0, false
}

// QueryOutOfBounds lists balls that the next sweep will remove, in id order.
func (w *World) QueryOutOfBounds() []dynamo.BodyID {
	var out []dynamo.BodyID
	for _, id := range w.ids() {
		e := w.bodies[id]
		if e.meta.Kind != dynamo.KindBall {
			continue
		}
		if _, cull := w.cullReason(e); cull {
			out = append(out, id)
		}
	}
	return out
}

func (w *World) sweep() {
	for _, id := range w.ids() {
		e := w.bodies[id]
		if e.meta.Kind != dynamo.KindBall {
			continue
		}
		if reason, cull := w.cullReason(e); cull {
			w.remove(id, reason)
		}
	}
}
