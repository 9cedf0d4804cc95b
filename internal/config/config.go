package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/bounce/internal/collision"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/selection"
	"github.com/san-kum/bounce/internal/sequencer"
	"github.com/san-kum/bounce/internal/voice"
)

const (
	DefaultDuration   = 20.0
	DefaultFPS        = 60
	DefaultSampleRate = 44100
	DefaultVolume     = 0.6
	DefaultTimbre     = "marimba"
	DefaultBackend    = "beep"
	DefaultLogLevel   = "info"
	DefaultDataDir    = "runs"
	DefaultAddr       = ":8080"
)

// Timbres lists the sound presets the audio backend knows.
var Timbres = []string{"marimba", "glass", "pluck", "chip"}

// Backends lists the synthesizer backends.
var Backends = []string{"beep", "midi", "none"}

type Config struct {
	Physics   physics.Config   `yaml:"physics"`
	Voice     voice.Config     `yaml:"voice"`
	Collision collision.Config `yaml:"collision"`
	Sequencer sequencer.Config `yaml:"sequencer"`
	Selection selection.Config `yaml:"selection"`
	Audio     AudioConfig      `yaml:"audio"`
	Run       RunConfig        `yaml:"run"`
	Scene     Scene            `yaml:"scene"`

	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	Addr     string `yaml:"addr"`
}

type AudioConfig struct {
	Backend    string  `yaml:"backend"`
	Timbre     string  `yaml:"timbre"`
	SampleRate int     `yaml:"sample_rate"`
	Volume     float64 `yaml:"volume"`
	MidiPort   string  `yaml:"midi_port"`
}

type RunConfig struct {
	Duration float64 `yaml:"duration"`
	FPS      int     `yaml:"fps"`
}

// Point is a position on the z = 0 plane.
type Point [2]float64

func (p Point) Vec3() mgl64.Vec3 { return mgl64.Vec3{p[0], p[1], 0} }

type WallSpec struct {
	From Point `yaml:"from" json:"from"`
	To   Point `yaml:"to" json:"to"`
}

type BoundarySpec struct {
	From      Point   `yaml:"from" json:"from"`
	To        Point   `yaml:"to" json:"to"`
	Thickness float64 `yaml:"thickness,omitempty" json:"thickness,omitempty"`
	Ground    bool    `yaml:"ground,omitempty" json:"ground,omitempty"`
}

// DispenserSpec places a dispenser. Pattern is sixteen characters, 'x' for
// an active step and '.' for a rest.
type DispenserSpec struct {
	At      Point  `yaml:"at" json:"at"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

type Scene struct {
	Name        string          `yaml:"name" json:"name"`
	Tempo       int             `yaml:"tempo" json:"tempo"`
	Walls       []WallSpec      `yaml:"walls" json:"walls"`
	Boundaries  []BoundarySpec  `yaml:"boundaries" json:"boundaries"`
	Dispensers  []DispenserSpec `yaml:"dispensers" json:"dispensers"`
	Viewport    *dynamo.Rect    `yaml:"viewport,omitempty" json:"viewport,omitempty"`
	AutoStart   bool            `yaml:"autostart" json:"autostart"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Physics:   physics.DefaultConfig(),
		Voice:     voice.DefaultConfig(),
		Collision: collision.DefaultConfig(),
		Sequencer: sequencer.DefaultConfig(),
		Selection: selection.DefaultConfig(),
		Audio: AudioConfig{
			Backend:    DefaultBackend,
			Timbre:     DefaultTimbre,
			SampleRate: DefaultSampleRate,
			Volume:     DefaultVolume,
		},
		Run: RunConfig{
			Duration: DefaultDuration,
			FPS:      DefaultFPS,
		},
		Scene:    DefaultScene(),
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataDir,
		Addr:     DefaultAddr,
	}
}

// DefaultScene is a floor with one beam under a single dispenser.
func DefaultScene() Scene {
	return Scene{
		Name:  "default",
		Tempo: sequencer.DefaultTempo,
		Walls: []WallSpec{{From: Point{-1, 0}, To: Point{1, 0}}},
		Boundaries: []BoundarySpec{
			{From: Point{-8, -6}, To: Point{8, -6}, Ground: true},
		},
		Dispensers: []DispenserSpec{{At: Point{0, 4}, Pattern: "x...x...x...x..."}},
		AutoStart:  true,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadScene reads a scene on its own, for files holding only geometry.
func LoadScene(path string) (Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, err
	}
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scene{}, fmt.Errorf("parse %s: %w", path, err)
	}
	s.Tempo = sceneTempo(s.Tempo)
	return s, nil
}

func SaveScene(path string, s Scene) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate clamps out-of-range values back into range. It never fails.
func (c *Config) Validate() {
	d := DefaultConfig()

	c.Physics = c.Physics.Normalize()
	c.Scene.Tempo = sceneTempo(c.Scene.Tempo)
	c.Sequencer.Tempo = sequencer.ClampTempo(c.Sequencer.Tempo)
	if c.Voice.Voices <= 0 {
		c.Voice.Voices = d.Voice.Voices
	}
	if c.Collision.VelocityScale <= 0 {
		c.Collision.VelocityScale = d.Collision.VelocityScale
	}

	c.Audio.Timbre = ValidTimbre(c.Audio.Timbre)
	if !slices.Contains(Backends, c.Audio.Backend) {
		c.Audio.Backend = d.Audio.Backend
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = d.Audio.SampleRate
	}
	c.Audio.Volume = dynamo.Clamp(c.Audio.Volume, 0, 1)

	if c.Run.Duration <= 0 {
		c.Run.Duration = d.Run.Duration
	}
	if c.Run.FPS <= 0 {
		c.Run.FPS = d.Run.FPS
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Addr == "" {
		c.Addr = d.Addr
	}
}

// ValidTimbre returns name if it is a known timbre, else the default.
func ValidTimbre(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if slices.Contains(Timbres, name) {
		return name
	}
	return DefaultTimbre
}

// ParsePattern reads a sixteen-step pattern. Missing steps are rests and
// extra characters are ignored.
func ParsePattern(s string) sequencer.Pattern {
	var p sequencer.Pattern
	for i, r := range s {
		if i >= sequencer.Steps {
			break
		}
		switch r {
		case 'x', 'X', '1', '#':
			p[i] = true
		}
	}
	return p
}

// FormatPattern is the inverse of ParsePattern.
func FormatPattern(p sequencer.Pattern) string {
	var b strings.Builder
	for _, on := range p {
		if on {
			b.WriteByte('x')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// sceneTempo treats an unset tempo as the default rather than the minimum.
func sceneTempo(bpm int) int {
	if bpm == 0 {
		return sequencer.DefaultTempo
	}
	return sequencer.ClampTempo(bpm)
}
