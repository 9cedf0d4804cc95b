package physics

import (
	"math"

	"github.com/san-kum/bounce/internal/pitch"
)

const (
	DefaultGravity       = -9.82
	DefaultFixedStep     = 1.0 / 60.0
	DefaultMaxFrameDelta = 0.1
	DefaultSubSteps      = 3
	MaxSubSteps          = 8
	DefaultSubStepSpeed  = 6.0

	DefaultBallRadius    = 0.1
	DefaultBallDensity   = 1.0
	DefaultBallDamping   = 0.999
	DefaultLinearDamping = 0.01

	DefaultContactRestitution = 0.97
	DefaultWallThickness      = 0.2
	DefaultMinWallLength      = 0.05

	DefaultSettleSpeedSq    = 0.01
	DefaultSettleRamp       = 1.5
	DefaultSettleMaxDamping = 10.0

	DefaultFloorY         = -12.0
	DefaultGroundGrace    = 0.5
	DefaultViewportMargin = 1.0
	DefaultMaxPending     = 256
)

type Material struct {
	Friction    float64 `yaml:"friction"`
	Restitution float64 `yaml:"restitution"`
}

// ContactMaterial applies to ball contacts with walls and boundaries. The
// solver iteration counts stand in for contact stiffness and relaxation.
type ContactMaterial struct {
	Friction           float64 `yaml:"friction"`
	Restitution        float64 `yaml:"restitution"`
	VelocityIterations int     `yaml:"velocity_iterations"`
	PositionIterations int     `yaml:"position_iterations"`
}

type Config struct {
	Gravity       float64 `yaml:"gravity"`
	FixedStep     float64 `yaml:"fixed_step"`
	MaxFrameDelta float64 `yaml:"max_frame_delta"`
	SubSteps      int     `yaml:"sub_steps"`
	// SubStepSpeed is the ball speed above which fixed steps are
	// subdivided. Zero subdivides every step.
	SubStepSpeed        float64 `yaml:"sub_step_speed"`
	ContinuousCollision bool    `yaml:"continuous_collision"`

	BallRadius    float64 `yaml:"ball_radius"`
	BallDensity   float64 `yaml:"ball_density"`
	BallDamping   float64 `yaml:"ball_damping"`
	LinearDamping float64 `yaml:"linear_damping"`

	Ball    Material        `yaml:"ball_material"`
	Wall    Material        `yaml:"wall_material"`
	Contact ContactMaterial `yaml:"contact_material"`

	WallThickness float64     `yaml:"wall_thickness"`
	MinWallLength float64     `yaml:"min_wall_length"`
	Pitch         pitch.Range `yaml:"pitch"`

	SettleSpeedSq    float64 `yaml:"settle_speed_sq"`
	SettleRamp       float64 `yaml:"settle_ramp"`
	SettleMaxDamping float64 `yaml:"settle_max_damping"`

	FloorY         float64 `yaml:"floor_y"`
	GroundGrace    float64 `yaml:"ground_grace"`
	ViewportMargin float64 `yaml:"viewport_margin"`
	MaxPending     int     `yaml:"max_pending"`
}

func DefaultConfig() Config {
	return Config{
		Gravity:       DefaultGravity,
		FixedStep:     DefaultFixedStep,
		MaxFrameDelta: DefaultMaxFrameDelta,
		SubSteps:      DefaultSubSteps,
		SubStepSpeed:  DefaultSubStepSpeed,

		BallRadius:    DefaultBallRadius,
		BallDensity:   DefaultBallDensity,
		BallDamping:   DefaultBallDamping,
		LinearDamping: DefaultLinearDamping,

		Ball: Material{Friction: 0.3, Restitution: 0.6},
		Wall: Material{Friction: 0.4, Restitution: 0.5},
		Contact: ContactMaterial{
			Friction:           0.1,
			Restitution:        DefaultContactRestitution,
			VelocityIterations: 8,
			PositionIterations: 3,
		},

		WallThickness: DefaultWallThickness,
		MinWallLength: DefaultMinWallLength,
		Pitch:         pitch.DefaultRange(),

		SettleSpeedSq:    DefaultSettleSpeedSq,
		SettleRamp:       DefaultSettleRamp,
		SettleMaxDamping: DefaultSettleMaxDamping,

		FloorY:         DefaultFloorY,
		GroundGrace:    DefaultGroundGrace,
		ViewportMargin: DefaultViewportMargin,
		MaxPending:     DefaultMaxPending,
	}
}

// Normalize clamps every field into a usable range. Zero values fall back
// to defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	pick := func(v, def float64) float64 {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return v
	}

	if math.IsNaN(c.Gravity) || math.IsInf(c.Gravity, 0) {
		c.Gravity = d.Gravity
	}
	c.FixedStep = math.Min(math.Max(pick(c.FixedStep, d.FixedStep), 1.0/480), 1.0/20)
	c.MaxFrameDelta = math.Max(pick(c.MaxFrameDelta, d.MaxFrameDelta), c.FixedStep)
	if c.SubSteps < 1 {
		c.SubSteps = 1
	}
	if c.SubSteps > MaxSubSteps {
		c.SubSteps = MaxSubSteps
	}
	if c.SubStepSpeed < 0 {
		c.SubStepSpeed = 0
	}

	c.BallRadius = pick(c.BallRadius, d.BallRadius)
	c.BallDensity = pick(c.BallDensity, d.BallDensity)
	c.BallDamping = math.Min(pick(c.BallDamping, d.BallDamping), 1)
	if c.LinearDamping < 0 {
		c.LinearDamping = 0
	}

	if c.Contact.VelocityIterations < 1 {
		c.Contact.VelocityIterations = d.Contact.VelocityIterations
	}
	if c.Contact.PositionIterations < 1 {
		c.Contact.PositionIterations = d.Contact.PositionIterations
	}

	c.WallThickness = pick(c.WallThickness, d.WallThickness)
	c.MinWallLength = pick(c.MinWallLength, d.MinWallLength)
	if c.Pitch.MaxLength <= 0 {
		c.Pitch = d.Pitch
	}

	c.SettleRamp = math.Max(pick(c.SettleRamp, d.SettleRamp), 1)
	c.SettleMaxDamping = pick(c.SettleMaxDamping, d.SettleMaxDamping)
	if c.SettleSpeedSq < 0 {
		c.SettleSpeedSq = 0
	}

	if c.GroundGrace < 0 {
		c.GroundGrace = 0
	}
	if c.ViewportMargin < 0 {
		c.ViewportMargin = 0
	}
	if c.MaxPending < 1 {
		c.MaxPending = d.MaxPending
	}
	return c
}
