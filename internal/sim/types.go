package sim

import (
	"fmt"

	"github.com/san-kum/bounce/internal/collision"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/synth"
)

type RunConfig struct {
	Duration float64
	FPS      int
}

func (c RunConfig) validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", c.Duration)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	return nil
}

func (c RunConfig) frames() int { return int(c.Duration * float64(c.FPS)) }

// TriggerRecord is one accepted collision on the simulation clock.
type TriggerRecord struct {
	Time      float64       `json:"time"`
	Geometry  dynamo.BodyID `json:"geometry"`
	Voice     int           `json:"voice"`
	Midi      int           `json:"midi"`
	Note      string        `json:"note"`
	Frequency float64       `json:"frequency"`
	Intensity float64       `json:"intensity"`
	Bound     bool          `json:"bound"`
}

// StepRecord is one sequencer tick that emitted balls.
type StepRecord struct {
	Time    float64 `json:"time"`
	Step    int     `json:"step"`
	Spawned int     `json:"spawned"`
}

type Stats struct {
	Collision collision.Stats  `json:"collision"`
	Synth     synth.Stats      `json:"synth"`
	Spawned   int64            `json:"spawned"`
	Removed   map[string]int64 `json:"removed"`
}

type Result struct {
	Frames   int                `json:"frames"`
	Time     float64            `json:"time"`
	Metrics  map[string]float64 `json:"metrics"`
	Triggers []TriggerRecord    `json:"triggers"`
	Steps    []StepRecord       `json:"steps"`
	Stats    Stats              `json:"stats"`
	Errors   []error            `json:"-"`
}
