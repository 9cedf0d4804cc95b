// Package optim sweeps engine parameters over headless runs and keeps the
// combination that scores best.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/sim"
)

var (
	ErrUnknownParam = errors.New("optim: unknown parameter")
	ErrBadRange     = errors.New("optim: bad range")
)

// Setters are the config fields a sweep may vary.
var Setters = map[string]func(*config.Config, float64){
	"gravity":     func(c *config.Config, v float64) { c.Physics.Gravity = -math.Abs(v) },
	"restitution": func(c *config.Config, v float64) { c.Physics.Contact.Restitution = v },
	"friction":    func(c *config.Config, v float64) { c.Physics.Contact.Friction = v },
	"ball_radius": func(c *config.Config, v float64) { c.Physics.BallRadius = v },
	"tempo": func(c *config.Config, v float64) {
		c.Sequencer.Tempo = int(math.Round(v))
		c.Scene.Tempo = c.Sequencer.Tempo
	},
	"jitter":        func(c *config.Config, v float64) { c.Sequencer.Jitter = v },
	"min_intensity": func(c *config.Config, v float64) { c.Collision.MinIntensity = v },
	"tolerance_ms": func(c *config.Config, v float64) {
		c.Voice.Tolerance = time.Duration(v * float64(time.Millisecond))
	},
}

func Params() []string {
	names := make([]string, 0, len(Setters))
	for name := range Setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configure returns a copy of base with params applied and clamped.
func Configure(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := *base
	for name, v := range params {
		set, ok := Setters[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownParam, name)
		}
		set(&cfg, v)
	}
	cfg.Validate()
	return &cfg, nil
}

// ParseRange reads either a comma list ("0.2,0.5") or lo:hi:count, which
// spaces count values evenly from lo to hi inclusive.
func ParseRange(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w %q: want lo:hi:count", ErrBadRange, s)
		}
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil || n < 1 {
			return nil, fmt.Errorf("%w %q", ErrBadRange, s)
		}
		if n == 1 {
			return []float64{lo}, nil
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		return out, nil
	}

	var out []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrBadRange, s)
		}
		out = append(out, v)
	}
	return out, nil
}

// Objective scores one finished run.
type Objective func(e *sim.Engine, r *sim.Result) float64

// Metric scores by a named engine metric, or by one of the run counters
// notes, spawned, suppressed and dropped.
func Metric(name string) Objective {
	return func(_ *sim.Engine, r *sim.Result) float64 {
		switch name {
		case "notes":
			return float64(len(r.Triggers))
		case "spawned":
			return float64(r.Stats.Spawned)
		case "suppressed":
			return float64(r.Stats.Collision.Suppressed)
		case "dropped":
			return float64(r.Stats.Synth.Dropped)
		}
		v, ok := r.Metrics[name]
		if !ok {
			return math.NaN()
		}
		return v
	}
}

// Build makes a ready engine, scene loaded, for one parameter combination.
type Build func(params map[string]float64) (*sim.Engine, sim.RunConfig, error)

type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters, %d ranges", ErrBadRange, len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := Setters[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownParam, name)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: %s has no values", ErrBadRange, name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Maximize makes higher scores win. The default is to minimize.
func (g *GridSearch) Maximize() *GridSearch {
	g.maximize = true
	return g
}

func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs every combination in order. Failed trials and NaN scores
// are kept in the trial list but never win.
func (g *GridSearch) Search(ctx context.Context, build Build, objective Objective) (Trial, []Trial, error) {
	best := Trial{Value: math.NaN()}
	trials := make([]Trial, 0, g.Size())

	err := g.searchRecursive(ctx, 0, make(map[string]float64), build, objective, &best, &trials)
	return best, trials, err
}

func (g *GridSearch) better(v, best float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if math.IsNaN(best) {
		return true
	}
	if g.maximize {
		return v > best
	}
	return v < best
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	build Build,
	objective Objective,
	best *Trial,
	trials *[]Trial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		trial := Trial{Params: current, Value: math.NaN()}
		trial.Value, trial.Err = run(ctx, current, build, objective)
		*trials = append(*trials, trial)
		if trial.Err == nil && g.better(trial.Value, best.Value) {
			*best = trial
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, build, objective, best, trials); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, params map[string]float64, build Build, objective Objective) (float64, error) {
	engine, rc, err := build(params)
	if err != nil {
		return math.NaN(), err
	}
	defer engine.Dispose()

	result, err := engine.Run(ctx, rc)
	if err != nil {
		return math.NaN(), err
	}
	return objective(engine, result), nil
}
