package physics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/pitch"
)

type CollisionEvent struct {
	A, B         dynamo.BodyID
	KindA, KindB dynamo.Kind
	// ImpactVelocity is the approach speed along the contact normal.
	ImpactVelocity float64
	Normal         mgl64.Vec3
	Point          mgl64.Vec3
	Time           float64
}

// Involves reports whether either side of the contact has kind k.
func (e CollisionEvent) Involves(k dynamo.Kind) bool {
	return e.KindA == k || e.KindB == k
}

type Change uint8

const (
	Created Change = iota
	Resized
	Moved
	Removed
)

func (c Change) String() string {
	switch c {
	case Created:
		return "created"
	case Resized:
		return "resized"
	case Moved:
		return "moved"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type GeometryEvent struct {
	ID     dynamo.BodyID
	Kind   dynamo.Kind
	Change Change
	Note   pitch.Note
	Length float64
}

type Reason uint8

const (
	ReasonDeleted Reason = iota
	ReasonFloor
	ReasonGround
	ReasonLifetime
	ReasonViewport
	ReasonInvalid
	ReasonFault
	ReasonCleared
)

func (r Reason) String() string {
	switch r {
	case ReasonDeleted:
		return "deleted"
	case ReasonFloor:
		return "floor"
	case ReasonGround:
		return "ground"
	case ReasonLifetime:
		return "lifetime"
	case ReasonViewport:
		return "viewport"
	case ReasonInvalid:
		return "invalid"
	case ReasonFault:
		return "fault"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

type Removal struct {
	ID     dynamo.BodyID
	Kind   dynamo.Kind
	Reason Reason
	Time   float64
}
