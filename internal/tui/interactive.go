// Package tui is the terminal front end: a preset menu, a braille view of
// the running scene with mouse editing, and a step grid for the
// dispensers' patterns.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/selection"
	"github.com/san-kum/bounce/internal/sequencer"
	"github.com/san-kum/bounce/internal/sim"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/viz"
)

const (
	headerRows  = 2
	footerRows  = 5
	historySize = 60
	tempoStep   = 4
)

type state int

const (
	stateMenu state = iota
	stateScene
)

type Options struct {
	Config *config.Config
	Synth  synth.Synthesizer
	Logger *slog.Logger
	// OnTimbre is called when the timbre is cycled.
	OnTimbre func(name string)
	FPS      int
}

type tickMsg time.Time

type Model struct {
	opts    Options
	state   state
	cursor  int
	presets []string

	engine *sim.Engine
	preset string
	timbre string

	canvas *viz.Canvas
	proj   viz.Projection
	view   dynamo.Rect

	row, step int
	dragging  bool

	lastRouted int64
	activity   []float64
	status     string

	width  int
	height int
}

func NewModel(opts Options) Model {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Synth == nil {
		opts.Synth = synth.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.FPS <= 0 {
		opts.FPS = config.DefaultFPS
	}
	m := Model{
		opts:    opts,
		presets: config.ListPresets(),
		timbre:  config.ValidTimbre(opts.Config.Audio.Timbre),
		width:   80,
		height:  24,
		view:    viz.DefaultView,
	}
	m.engine = sim.New(opts.Config, opts.Synth, sim.WithLogger(opts.Logger), sim.WithWallClock())
	m.resize()
	return m
}

// Engine exposes the engine behind the model.
func (m Model) Engine() *sim.Engine { return m.engine }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		if m.state == stateScene {
			m.handleMouse(msg)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case tickMsg:
		if m.state != stateScene {
			return m, nil
		}
		m.frame()
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) frame() {
	m.engine.Frame(1 / float64(m.opts.FPS))
	routed := m.engine.Router().Stats().Routed
	m.activity = append(m.activity, float64(routed-m.lastRouted))
	if len(m.activity) > historySize {
		m.activity = m.activity[1:]
	}
	m.lastRouted = routed
}

func (m *Model) resize() {
	rows := len(m.engine.Sequencer().Dispensers())
	w := max(m.width-2, 20)
	h := max(m.height-headerRows-footerRows-rows, 6)
	m.canvas = viz.NewCanvas(w, h)
	m.proj = viz.NewProjection(m.view, m.canvas)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.state == stateMenu {
		return m.menuKey(msg)
	}
	return m.sceneKey(msg)
}

func (m Model) menuKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.engine.Dispose()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.load(m.presets[m.cursor])
		m.state = stateScene
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) load(name string) {
	m.preset = name
	scene := config.GetPreset(name).Scene
	if err := m.engine.LoadScene(scene); err != nil {
		m.status = err.Error()
	} else {
		m.status = ""
	}
	if scene.Viewport != nil {
		m.view = *scene.Viewport
	} else {
		m.view = viz.FitView(m.engine.Snapshot(), 1, viz.DefaultView)
	}
	m.row, m.step = 0, 0
	m.activity = nil
	m.lastRouted = m.engine.Router().Stats().Routed
	m.resize()
}

func (m Model) sceneKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	seq := m.engine.Sequencer()
	sel := m.engine.Selection()
	dispensers := seq.Dispensers()

	switch msg.String() {
	case "q", "ctrl+c":
		m.engine.Dispose()
		return m, tea.Quit
	case "esc":
		if sel.State() != selection.Idle {
			sel.Escape()
			return m, nil
		}
		seq.Stop()
		m.state = stateMenu
	case " ":
		if seq.Running() {
			seq.Stop()
		} else {
			seq.Start()
		}
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < len(dispensers)-1 {
			m.row++
		}
	case "left", "h":
		m.step = (m.step + sequencer.Steps - 1) % sequencer.Steps
	case "right", "l":
		m.step = (m.step + 1) % sequencer.Steps
	case "enter", "x":
		if m.row < len(dispensers) {
			seq.ToggleStep(dispensers[m.row], m.step)
		}
	case "+", "=":
		m.engine.SetTempo(m.engine.Tempo() + tempoStep)
	case "-", "_":
		m.engine.SetTempo(m.engine.Tempo() - tempoStep)
	case "t":
		m.timbre = nextTimbre(m.timbre)
		if m.opts.OnTimbre != nil {
			m.opts.OnTimbre(m.timbre)
		}
	case "r":
		m.load(m.preset)
	case "delete", "backspace":
		if err := sel.Delete(); err != nil {
			m.status = err.Error()
		}
		m.row = min(m.row, max(len(seq.Dispensers())-1, 0))
		m.resize()
	}
	return m, nil
}

func nextTimbre(current string) string {
	for i, name := range config.Timbres {
		if name == current {
			return config.Timbres[(i+1)%len(config.Timbres)]
		}
	}
	return config.Timbres[0]
}

// toWorld maps a terminal cell to the world point at its center.
func (m Model) toWorld(x, y int) (mgl64.Vec3, bool) {
	row := y - headerRows
	if x < 0 || row < 0 || x >= m.canvas.Width || row >= m.canvas.Height {
		return mgl64.Vec3{}, false
	}
	return m.proj.World(x*2+1, row*4+2), true
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	p, inside := m.toWorld(msg.X, msg.Y)
	sel := m.engine.Selection()
	before := len(m.engine.Sequencer().Dispensers())

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !inside {
			return
		}
		switch {
		case msg.Ctrl:
			if _, err := sel.ModifierClick(p); err != nil {
				m.status = err.Error()
			}
		case msg.Shift:
			sel.DragStart(p, true)
			m.dragging = true
		default:
			sel.Click(p)
			sel.DragStart(p, false)
			m.dragging = true
		}
	case tea.MouseActionMotion:
		if m.dragging && inside {
			sel.DragMove(p)
		}
	case tea.MouseActionRelease:
		if !m.dragging {
			return
		}
		m.dragging = false
		if inside {
			sel.DragEnd(p)
		} else {
			sel.Escape()
		}
	}
	if len(m.engine.Sequencer().Dispensers()) != before {
		m.resize()
	}
}

func (m Model) View() string {
	if m.state == stateMenu {
		return m.viewMenu()
	}
	return m.viewScene()
}

func (m Model) viewMenu() string {
	var b strings.Builder
	b.WriteString(viz.GradientText("bounce", "#00ffff", "#ff00ff"))
	b.WriteString(viz.Subtle.Render("  contraption sequencer"))
	b.WriteString("\n\n")
	for i, name := range m.presets {
		cursor := "  "
		label := viz.MetricLabel.Render(name)
		if i == m.cursor {
			cursor = viz.Title.Render("> ")
			label = viz.MetricValue.Render(name)
		}
		b.WriteString(cursor + label + "  " + viz.Subtle.Render(config.Presets[name].Description) + "\n")
	}
	b.WriteString("\n" + viz.KeyHint.Render("↑/↓ choose · enter open · q quit"))
	return b.String()
}

func (m Model) viewScene() string {
	e := m.engine
	seq := e.Sequencer()
	snap := e.Snapshot()

	status := viz.StatusPaused.Render("■ stopped")
	if seq.Running() {
		status = viz.StatusRunning.Render("▶ playing")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s  %s %s  %s %s\n\n",
		viz.GradientText("bounce", "#00ffff", "#ff00ff"),
		viz.Subtle.Render(m.preset),
		status,
		viz.MetricLabel.Render("bpm"), viz.MetricValue.Render(fmt.Sprint(e.Tempo())),
		viz.MetricLabel.Render("timbre"), viz.MetricValue.Render(m.timbre),
	)

	selected, _ := e.Selection().Selection()
	start, end, drawing := e.Selection().Preview()
	viz.DrawScene(m.canvas, m.proj, viz.SceneView{
		Snapshot:     snap,
		Selected:     selected,
		Drawing:      drawing,
		PreviewStart: start,
		PreviewEnd:   end,
	})
	b.WriteString(m.canvas.String())
	b.WriteString("\n")

	cursor := -1
	if seq.Running() {
		cursor = seq.Cursor()
	}
	for i, id := range seq.Dispensers() {
		p, _ := seq.Pattern(id)
		marker, edit := "  ", -1
		if i == m.row {
			marker, edit = viz.Title.Render("> "), m.step
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", marker, viz.MetricLabel.Render(fmt.Sprintf("d%-2d", i+1)), viz.StepRow(p[:], cursor, edit)))
	}

	stats := e.Router().Stats()
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s  %s\n",
		viz.MetricLabel.Render("balls"), viz.MetricValue.Render(fmt.Sprint(snap.Count(dynamo.KindBall))),
		viz.MetricLabel.Render("notes"), viz.MetricValue.Render(fmt.Sprint(stats.Routed)),
		viz.MetricLabel.Render("beams"), viz.MetricValue.Render(fmt.Sprint(snap.Count(dynamo.KindWall))),
		viz.Sparkline(m.activity, 30),
	)
	if m.status != "" {
		b.WriteString(viz.StatusError.Render(m.status) + "\n")
	}
	b.WriteString(viz.KeyHint.Render("space play · ←→↑↓ move · x toggle · +/- tempo · t timbre · shift-drag beam · ctrl-click dispenser · del remove · esc back"))
	return b.String()
}

// Run starts the terminal app with the mouse enabled.
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
