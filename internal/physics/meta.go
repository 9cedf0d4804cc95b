package physics

import (
	"math"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/pitch"
)

type Ball struct {
	Radius   float64
	Created  float64
	Lifetime float64
	Damping  float64
	Tags     []string

	// RemoveAfter is a sim-time deadline; zero means none.
	RemoveAfter float64
	Grounded    bool
}

// Segment is the shared geometry of walls and boundaries.
type Segment struct {
	Start     mgl64.Vec3
	End       mgl64.Vec3
	Center    mgl64.Vec3
	Length    float64
	Angle     float64
	Thickness float64
}

func newSegment(start, end mgl64.Vec3, thickness float64) Segment {
	start, end = dynamo.Flat(start), dynamo.Flat(end)
	d := end.Sub(start)
	return Segment{
		Start:     start,
		End:       end,
		Center:    start.Add(end).Mul(0.5),
		Length:    d.Len(),
		Angle:     math.Atan2(d.Y(), d.X()),
		Thickness: thickness,
	}
}

// Distance returns the distance from p to the segment's centre line.
func (s Segment) Distance(p mgl64.Vec3) float64 {
	p = dynamo.Flat(p)
	d := s.End.Sub(s.Start)
	l2 := d.Dot(d)
	if l2 == 0 {
		return p.Sub(s.Start).Len()
	}
	t := dynamo.Clamp(p.Sub(s.Start).Dot(d)/l2, 0, 1)
	return p.Sub(s.Start.Add(d.Mul(t))).Len()
}

type Wall struct {
	Segment
	Note  pitch.Note
	Color string
}

type Boundary struct {
	Segment
	Ground bool
}

type Dispenser struct {
	Position mgl64.Vec3
}

// Meta is the tagged side-table record for one body. Exactly one of the
// variant pointers matching Kind is set.
type Meta struct {
	ID        dynamo.BodyID
	Kind      dynamo.Kind
	Ball      *Ball
	Wall      *Wall
	Boundary  *Boundary
	Dispenser *Dispenser
}

func (m Meta) clone() Meta {
	out := Meta{ID: m.ID, Kind: m.Kind}
	switch m.Kind {
	case dynamo.KindBall:
		b := *m.Ball
		b.Tags = append([]string(nil), m.Ball.Tags...)
		out.Ball = &b
	case dynamo.KindWall:
		w := *m.Wall
		out.Wall = &w
	case dynamo.KindBoundary:
		b := *m.Boundary
		out.Boundary = &b
	case dynamo.KindDispenser:
		d := *m.Dispenser
		out.Dispenser = &d
	}
	return out
}

// entry pairs a side-table record with its solver handles. Dispensers have
// no body.
type entry struct {
	meta    Meta
	body    *box2d.B2Body
	fixture *box2d.B2Fixture
}

func vec2(v mgl64.Vec3) box2d.B2Vec2 {
	return box2d.MakeB2Vec2(v.X(), v.Y())
}

func vec3(v box2d.B2Vec2) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, 0}
}
