// Package gui is the raylib front end. The scene lives on the z = 0 plane
// of a 3D camera; mouse rays are intersected with that plane and fed to the
// selection gestures.
package gui

import (
	"fmt"
	"log/slog"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/selection"
	"github.com/san-kum/bounce/internal/sim"
	"github.com/san-kum/bounce/internal/synth"
)

const (
	screenWidth  = 1280
	screenHeight = 720
	fovy         = 45.0
	tempoStep    = 4
	fontPath     = "/usr/share/fonts/liberation/LiberationMono-Regular.ttf"
)

var (
	ColBg      = rl.NewColor(10, 10, 10, 255)
	ColAccent  = rl.NewColor(180, 180, 180, 255)
	ColSelect  = rl.NewColor(255, 255, 255, 255)
	ColText    = rl.NewColor(140, 140, 140, 255)
	ColTextDim = rl.NewColor(60, 60, 60, 255)
	ColGrid    = rl.NewColor(30, 30, 30, 255)
	ColMagenta = rl.NewColor(255, 0, 255, 255)
	ColCyan    = rl.NewColor(0, 255, 255, 255)
)

var defaultView = dynamo.Rect{MinX: -9, MinY: -7, MaxX: 9, MaxY: 6}

type Options struct {
	Config *config.Config
	Synth  synth.Synthesizer
	// Gate, when set, holds playback until the audio device is running.
	Gate   *synth.Gate
	Logger *slog.Logger
	// Preset is loaded at start; empty opens the preset menu.
	Preset   string
	OnTimbre func(name string)
	// SaveScene is called with the current scene when S is pressed.
	SaveScene func(config.Scene) error
}

type App struct {
	opts   Options
	engine *sim.Engine
	logger *slog.Logger

	Camera  rl.Camera3D
	Font    rl.Font
	InMenu  bool
	Presets []string
	Cursor  int

	preset   string
	timbre   string
	view     dynamo.Rect
	dragging bool
	hover    mgl64.Vec3
	status   string
	activity []float64
	routed   int64
}

func initWindow() {
	rl.InitWindow(screenWidth, screenHeight, "bounce")
	rl.SetTargetFPS(config.DefaultFPS)
	rl.SetExitKey(0)
}

func loadFont() rl.Font {
	if _, err := os.Stat(fontPath); err != nil {
		return rl.GetFontDefault()
	}
	font := rl.LoadFontEx(fontPath, 32, nil, 0)
	rl.SetTextureFilter(font.Texture, rl.FilterBilinear)
	return font
}

func NewApp(opts Options) *App {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	engineOpts := []sim.Option{sim.WithLogger(opts.Logger), sim.WithWallClock()}
	if opts.Gate != nil {
		engineOpts = append(engineOpts, sim.WithGate(opts.Gate))
	}
	a := &App{
		opts:    opts,
		engine:  sim.New(opts.Config, opts.Synth, engineOpts...),
		logger:  opts.Logger,
		Font:    loadFont(),
		Presets: config.ListPresets(),
		InMenu:  opts.Preset == "",
		timbre:  config.ValidTimbre(opts.Config.Audio.Timbre),
		view:    defaultView,
	}
	a.frame(a.view)
	if opts.Preset != "" {
		a.load(opts.Preset)
	}
	return a
}

// Run opens the window and blocks until it is closed.
func Run(opts Options) {
	initWindow()
	defer rl.CloseWindow()
	app := NewApp(opts)
	defer app.engine.Dispose()
	app.RunLoop()
}

func (a *App) RunLoop() {
	for !rl.WindowShouldClose() {
		if !a.Update() {
			return
		}
		a.Draw()
	}
}

func (a *App) frame(view dynamo.Rect) {
	pos, target := framing(view, fovy, float64(screenWidth)/float64(screenHeight))
	a.Camera = rl.NewCamera3D(vec(pos), vec(target), rl.NewVector3(0, 1, 0), fovy, rl.CameraPerspective)
}

func (a *App) load(name string) {
	scene := config.GetPreset(name).Scene
	a.preset = name
	a.status = ""
	if err := a.engine.LoadScene(scene); err != nil {
		a.status = err.Error()
		a.logger.Warn("preset loaded with errors", "preset", name, "err", err)
	}
	a.view = defaultView
	if scene.Viewport != nil {
		a.view = *scene.Viewport
	}
	a.frame(a.view)
	a.activity = nil
	a.routed = a.engine.Router().Stats().Routed
	a.InMenu = false
}

// Update handles input and advances the engine. It returns false when the
// app should quit.
func (a *App) Update() bool {
	if rl.IsKeyPressed(rl.KeyQ) {
		return false
	}
	if a.InMenu {
		a.updateMenu()
		return true
	}

	a.handleKeys()
	a.handleMouse()

	a.engine.Frame(float64(rl.GetFrameTime()))
	routed := a.engine.Router().Stats().Routed
	a.activity = append(a.activity, float64(routed-a.routed))
	if len(a.activity) > 200 {
		a.activity = a.activity[1:]
	}
	a.routed = routed
	return true
}

func (a *App) updateMenu() {
	if rl.IsKeyPressed(rl.KeyDown) || rl.IsKeyPressed(rl.KeyJ) {
		a.Cursor = (a.Cursor + 1) % len(a.Presets)
	}
	if rl.IsKeyPressed(rl.KeyUp) || rl.IsKeyPressed(rl.KeyK) {
		a.Cursor = (a.Cursor + len(a.Presets) - 1) % len(a.Presets)
	}
	if rl.IsKeyPressed(rl.KeyEnter) || rl.IsKeyPressed(rl.KeySpace) {
		a.load(a.Presets[a.Cursor])
	}
}

func (a *App) handleKeys() {
	seq := a.engine.Sequencer()
	sel := a.engine.Selection()

	if rl.IsKeyPressed(rl.KeyEscape) {
		if sel.State() != selection.Idle {
			sel.Escape()
		} else {
			seq.Stop()
			a.InMenu = true
		}
		return
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		if seq.Running() {
			seq.Stop()
		} else {
			seq.Start()
		}
	}
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		a.engine.SetTempo(a.engine.Tempo() + tempoStep)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		a.engine.SetTempo(a.engine.Tempo() - tempoStep)
	}
	if rl.IsKeyPressed(rl.KeyT) {
		a.timbre = nextTimbre(a.timbre)
		if a.opts.OnTimbre != nil {
			a.opts.OnTimbre(a.timbre)
		}
	}
	if rl.IsKeyPressed(rl.KeyR) {
		a.load(a.preset)
	}
	if rl.IsKeyPressed(rl.KeyDelete) || rl.IsKeyPressed(rl.KeyBackspace) {
		if err := sel.Delete(); err != nil {
			a.status = err.Error()
		}
	}
	if rl.IsKeyPressed(rl.KeyS) && a.opts.SaveScene != nil {
		if err := a.opts.SaveScene(a.engine.Scene()); err != nil {
			a.status = err.Error()
		} else {
			a.status = "scene saved"
		}
	}
	if id, ok := sel.Selection(); ok {
		a.editPattern(id)
	}
}

// editPattern toggles steps of a selected dispenser with the number row
// and the keys below it.
func (a *App) editPattern(id dynamo.BodyID) {
	keys := [...]int32{
		rl.KeyOne, rl.KeyTwo, rl.KeyThree, rl.KeyFour, rl.KeyFive, rl.KeySix, rl.KeySeven, rl.KeyEight,
		rl.KeyA, rl.KeyW, rl.KeyE, rl.KeyF, rl.KeyG, rl.KeyY, rl.KeyU, rl.KeyI,
	}
	for step, key := range keys {
		if rl.IsKeyPressed(key) {
			a.engine.Sequencer().ToggleStep(id, step)
		}
	}
}

func (a *App) mouseWorld() (mgl64.Vec3, bool) {
	ray := rl.GetMouseRay(rl.GetMousePosition(), a.Camera)
	origin := mgl64.Vec3{float64(ray.Position.X), float64(ray.Position.Y), float64(ray.Position.Z)}
	dir := mgl64.Vec3{float64(ray.Direction.X), float64(ray.Direction.Y), float64(ray.Direction.Z)}
	return planeHit(origin, dir)
}

func (a *App) handleMouse() {
	p, ok := a.mouseWorld()
	if !ok {
		return
	}
	a.hover = p
	sel := a.engine.Selection()
	shift := rl.IsKeyDown(rl.KeyLeftShift) || rl.IsKeyDown(rl.KeyRightShift)
	ctrl := rl.IsKeyDown(rl.KeyLeftControl) || rl.IsKeyDown(rl.KeyRightControl)

	switch {
	case rl.IsMouseButtonPressed(rl.MouseLeftButton):
		switch {
		case ctrl:
			if _, err := sel.ModifierClick(p); err != nil {
				a.status = err.Error()
			}
		case shift:
			sel.DragStart(p, true)
			a.dragging = true
		default:
			sel.Click(p)
			sel.DragStart(p, false)
			a.dragging = true
		}
	case rl.IsMouseButtonReleased(rl.MouseLeftButton) && a.dragging:
		a.dragging = false
		sel.DragEnd(p)
	case rl.IsMouseButtonDown(rl.MouseLeftButton) && a.dragging:
		sel.DragMove(p)
	}
}

func nextTimbre(current string) string {
	for i, name := range config.Timbres {
		if name == current {
			return config.Timbres[(i+1)%len(config.Timbres)]
		}
	}
	return config.Timbres[0]
}

func (a *App) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(ColBg)
	if a.InMenu {
		a.drawMenu()
	} else {
		a.drawScene()
		a.drawHUD()
	}
	rl.EndDrawing()
}

func (a *App) drawText(text string, x, y int, size int, color rl.Color) {
	rl.DrawTextEx(a.Font, text, rl.NewVector2(float32(x), float32(y)), float32(size), 1, color)
}

func (a *App) drawMenu() {
	a.drawText("bounce", 50, 50, 40, ColSelect)
	a.drawText("choose a contraption", 50, 100, 16, ColTextDim)
	y := 160
	for i, name := range a.Presets {
		if i == a.Cursor {
			a.drawText("> "+name, 50, y, 20, ColSelect)
		} else {
			a.drawText("  "+name, 50, y, 20, ColText)
		}
		y += 28
	}
	a.drawText("ARROWS: NAVIGATE  ENTER: OPEN  Q: QUIT", 850, 680, 14, ColTextDim)
}

func (a *App) drawHUD() {
	seq := a.engine.Sequencer()
	a.drawText("bounce", 30, 30, 24, ColSelect)
	a.drawText(":: "+a.preset, 140, 34, 16, ColText)

	status, col := "STOPPED", ColTextDim
	if seq.Running() {
		status, col = "PLAYING", ColSelect
	}
	a.drawText(status, 1150, 30, 16, col)
	a.drawText(fmt.Sprintf("%d BPM  %s", a.engine.Tempo(), a.timbre), 1000, 54, 16, ColAccent)

	a.drawPatterns()
	a.drawActivity()

	if a.status != "" {
		col := rl.Red
		if a.status == "scene saved" {
			col = ColAccent
		}
		a.drawText(a.status, 30, 620, 14, col)
	}
	a.drawText("[SPACE] PLAY  [SHIFT-DRAG] BEAM  [CTRL-CLICK] DISPENSER  [DEL] REMOVE  [T] TIMBRE  [S] SAVE  [ESC] MENU", 330, 680, 14, ColTextDim)
	a.drawText(fmt.Sprintf("%d FPS", int32(rl.GetFPS())), 30, 680, 14, ColTextDim)
}
