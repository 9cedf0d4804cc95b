package config

import "sort"

var ground = BoundarySpec{From: Point{-8, -6}, To: Point{8, -6}, Ground: true}

// Presets are ready-made scenes.
var Presets = map[string]Scene{
	"default": DefaultScene(),
	"cascade": {
		Name:  "cascade",
		Tempo: 110,
		Walls: []WallSpec{
			{From: Point{-2.0, 3.0}, To: Point{-0.6, 2.4}},
			{From: Point{0.2, 1.6}, To: Point{1.8, 1.0}},
			{From: Point{-1.5, 0.0}, To: Point{0.3, -0.8}},
			{From: Point{0.8, -1.8}, To: Point{3.0, -2.6}},
			{From: Point{-3.0, -3.4}, To: Point{-0.4, -4.2}},
		},
		Boundaries: []BoundarySpec{ground},
		Dispensers: []DispenserSpec{
			{At: Point{-1.6, 4.5}, Pattern: "x.......x......."},
			{At: Point{-1.2, 4.5}, Pattern: "....x.......x.x."},
		},
		AutoStart:   true,
		Description: "balls tumble down alternating beams",
	},
	"pingpong": {
		Name:  "pingpong",
		Tempo: 96,
		Walls: []WallSpec{
			{From: Point{-3.0, 0.5}, To: Point{-1.8, -0.7}},
			{From: Point{1.8, -0.7}, To: Point{3.0, 0.5}},
			{From: Point{-0.4, -2.5}, To: Point{0.4, -2.5}},
		},
		Boundaries: []BoundarySpec{
			ground,
			{From: Point{-4, -6}, To: Point{-4, 6}},
			{From: Point{4, -6}, To: Point{4, 6}},
		},
		Dispensers: []DispenserSpec{
			{At: Point{-2.6, 3.0}, Pattern: "x...x...x...x..."},
			{At: Point{2.6, 3.0}, Pattern: "..x...x...x...x."},
		},
		AutoStart:   true,
		Description: "two angled beams trade balls across the middle",
	},
	"stairs": {
		Name:  "stairs",
		Tempo: 132,
		Walls: []WallSpec{
			{From: Point{-3.0, 2.0}, To: Point{-2.6, 1.9}},
			{From: Point{-2.2, 1.0}, To: Point{-1.4, 0.9}},
			{From: Point{-1.0, 0.0}, To: Point{0.2, -0.1}},
			{From: Point{0.6, -1.0}, To: Point{2.2, -1.1}},
			{From: Point{2.4, -2.0}, To: Point{4.4, -2.1}},
		},
		Boundaries: []BoundarySpec{ground},
		Dispensers: []DispenserSpec{
			{At: Point{-2.8, 3.5}, Pattern: "x.x.x.x.x.x.x.x."},
		},
		AutoStart:   true,
		Description: "an ascending scale of beams",
	},
}

// GetPreset returns a default config with the named scene, or nil.
func GetPreset(name string) *Config {
	scene, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Scene = scene
	cfg.Scene.Walls = append([]WallSpec(nil), scene.Walls...)
	cfg.Scene.Boundaries = append([]BoundarySpec(nil), scene.Boundaries...)
	cfg.Scene.Dispensers = append([]DispenserSpec(nil), scene.Dispensers...)
	cfg.Sequencer.Tempo = scene.Tempo
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
