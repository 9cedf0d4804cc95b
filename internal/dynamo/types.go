package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyID identifies a body for its whole lifetime. Zero is never issued.
type BodyID uint32

type Kind uint8

const (
	KindBall Kind = iota
	KindWall
	KindBoundary
	KindDispenser
)

func (k Kind) String() string {
	switch k {
	case KindBall:
		return "ball"
	case KindWall:
		return "wall"
	case KindBoundary:
		return "boundary"
	case KindDispenser:
		return "dispenser"
	default:
		return "unknown"
	}
}

// Geometry reports whether bodies of this kind are user-placed scene pieces.
func (k Kind) Geometry() bool {
	return k == KindWall || k == KindDispenser
}

type BodySnapshot struct {
	ID          BodyID     `json:"id"`
	Kind        Kind       `json:"kind"`
	Position    mgl64.Vec3 `json:"position"`
	Orientation mgl64.Quat `json:"orientation"`
	Velocity    mgl64.Vec3 `json:"velocity"`
	Radius      float64    `json:"radius,omitempty"`
	Start       mgl64.Vec3 `json:"start,omitempty"`
	End         mgl64.Vec3 `json:"end,omitempty"`
	Length      float64    `json:"length,omitempty"`
	Thickness   float64    `json:"thickness,omitempty"`
	Note        string     `json:"note,omitempty"`
	Color       string     `json:"color,omitempty"`
}

type Snapshot struct {
	Frame  int            `json:"frame"`
	Time   float64        `json:"time"`
	Bodies []BodySnapshot `json:"bodies"`
}

func (s Snapshot) Count(k Kind) int {
	n := 0
	for i := range s.Bodies {
		if s.Bodies[i].Kind == k {
			n++
		}
	}
	return n
}

func (s Snapshot) Find(id BodyID) (BodySnapshot, bool) {
	for i := range s.Bodies {
		if s.Bodies[i].ID == id {
			return s.Bodies[i], true
		}
	}
	return BodySnapshot{}, false
}

type Metric interface {
	Name() string
	Observe(s Snapshot)
	Value() float64
	Reset()
}

type Observer interface {
	OnFrame(s Snapshot)
}

// Rect is an axis-aligned region of the z = 0 plane.
type Rect struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

func (r Rect) Contains(p mgl64.Vec3, margin float64) bool {
	return p.X() >= r.MinX-margin && p.X() <= r.MaxX+margin &&
		p.Y() >= r.MinY-margin && p.Y() <= r.MaxY+margin
}

func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func FiniteVec(v mgl64.Vec3) bool {
	return Finite(v[0], v[1], v[2])
}

// Flat projects a point onto the z = 0 plane.
func Flat(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), v.Y(), 0}
}

// RotationZ returns the orientation for an angle about +Z in radians.
func RotationZ(angle float64) mgl64.Quat {
	return mgl64.QuatRotate(angle, mgl64.Vec3{0, 0, 1})
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
