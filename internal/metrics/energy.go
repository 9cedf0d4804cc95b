package metrics

import (
	"math"

	"github.com/san-kum/bounce/internal/dynamo"
)

// Energy tracks the mean specific mechanical energy of the live balls,
// with potential measured from the floor.
type Energy struct {
	name    string
	gravity float64
	floor   float64
	samples int
	total   float64
	last    float64
}

func NewEnergy(gravity, floor float64) *Energy {
	return &Energy{
		name:    "energy",
		gravity: math.Abs(gravity),
		floor:   floor,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s dynamo.Snapshot) {
	sum := 0.0
	for _, b := range s.Bodies {
		if b.Kind != dynamo.KindBall {
			continue
		}
		sum += SpecificEnergy(b, e.gravity, e.floor)
	}
	e.last = sum
	e.total += sum
	e.samples++
}

// Last is the energy observed in the most recent frame.
func (e *Energy) Last() float64 { return e.last }

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *Energy) Reset() {
	e.total = 0
	e.last = 0
	e.samples = 0
}

// SpecificEnergy is kinetic plus potential energy per unit mass.
func SpecificEnergy(b dynamo.BodySnapshot, gravity, floor float64) float64 {
	v := b.Velocity.Len()
	return 0.5*v*v + math.Abs(gravity)*(b.Position.Y()-floor)
}

// PeakHeight is the highest point any ball has reached.
type PeakHeight struct {
	name string
	peak float64
	seen bool
}

func NewPeakHeight() *PeakHeight {
	return &PeakHeight{name: "peak_height"}
}

func (p *PeakHeight) Name() string { return p.name }

func (p *PeakHeight) Observe(s dynamo.Snapshot) {
	for _, b := range s.Bodies {
		if b.Kind != dynamo.KindBall {
			continue
		}
		y := b.Position.Y()
		if !p.seen || y > p.peak {
			p.peak = y
			p.seen = true
		}
	}
}

func (p *PeakHeight) Value() float64 { return p.peak }

func (p *PeakHeight) Reset() {
	p.peak = 0
	p.seen = false
}
