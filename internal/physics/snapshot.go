package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
)

// Snapshot returns a read-only view of every live body in id order.
func (w *World) Snapshot() dynamo.Snapshot {
	snap := dynamo.Snapshot{
		Frame:  w.steps,
		Time:   w.time,
		Bodies: make([]dynamo.BodySnapshot, 0, len(w.bodies)),
	}
	for _, id := range w.ids() {
		snap.Bodies = append(snap.Bodies, w.bodySnapshot(w.bodies[id]))
	}
	return snap
}

func (w *World) bodySnapshot(e *entry) dynamo.BodySnapshot {
	bs := dynamo.BodySnapshot{ID: e.meta.ID, Kind: e.meta.Kind, Orientation: mgl64.QuatIdent()}

	switch e.meta.Kind {
	case dynamo.KindBall:
		bs.Position = vec3(e.body.GetPosition())
		bs.Velocity = vec3(e.body.GetLinearVelocity())
		bs.Orientation = dynamo.RotationZ(e.body.GetAngle())
		bs.Radius = e.meta.Ball.Radius
	case dynamo.KindWall:
		segmentSnapshot(&bs, e.meta.Wall.Segment)
		bs.Note = e.meta.Wall.Note.Name
		bs.Color = e.meta.Wall.Color
	case dynamo.KindBoundary:
		segmentSnapshot(&bs, e.meta.Boundary.Segment)
	case dynamo.KindDispenser:
		bs.Position = e.meta.Dispenser.Position
	}
	return bs
}

func segmentSnapshot(bs *dynamo.BodySnapshot, seg Segment) {
	bs.Position = seg.Center
	bs.Orientation = dynamo.RotationZ(seg.Angle)
	bs.Start = seg.Start
	bs.End = seg.End
	bs.Length = seg.Length
	bs.Thickness = seg.Thickness
}

// Pick returns the wall or dispenser nearest to p within tolerance.
// Dispensers are measured with half the tolerance taken off, so one placed
// on a beam is still picked first.
func (w *World) Pick(p mgl64.Vec3, tolerance float64) (dynamo.BodyID, bool) {
	best := dynamo.BodyID(0)
	bestDist := math.Inf(1)

	for _, id := range w.ids() {
		e := w.bodies[id]
		var d float64
		switch e.meta.Kind {
		case dynamo.KindWall:
			d = e.meta.Wall.Distance(p) - e.meta.Wall.Thickness/2
		case dynamo.KindDispenser:
			d = dynamo.Flat(p).Sub(e.meta.Dispenser.Position).Len() - tolerance/2
		default:
			continue
		}
		if d < 0 {
			d = 0
		}
		if d <= tolerance && d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != 0
}

// EndpointNear reports which end of wall id lies within radius of p.
func (w *World) EndpointNear(id dynamo.BodyID, p mgl64.Vec3, radius float64) (End, bool) {
	e, ok := w.bodies[id]
	if !ok || e.meta.Kind != dynamo.KindWall {
		return 0, false
	}
	p = dynamo.Flat(p)
	ds := p.Sub(e.meta.Wall.Start).Len()
	de := p.Sub(e.meta.Wall.End).Len()
	switch {
	case ds <= radius && ds <= de:
		return StartPoint, true
	case de <= radius:
		return EndPoint, true
	}
	return 0, false
}
