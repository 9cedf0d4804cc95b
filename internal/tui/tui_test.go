package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/sequencer"
	"github.com/san-kum/bounce/internal/sim"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func openPreset(t *testing.T, name string, opts Options) Model {
	t.Helper()
	m := NewModel(opts)
	idx := -1
	for i, p := range m.presets {
		if p == name {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("preset %s missing", name)
	}
	for i := 0; i < idx; i++ {
		m = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateScene || m.preset != name {
		t.Fatalf("expected scene %s, state=%d preset=%s", name, m.state, m.preset)
	}
	t.Cleanup(m.engine.Dispose)
	return m
}

func TestMenuOpensPreset(t *testing.T) {
	m := openPreset(t, "default", Options{})
	if got := len(m.engine.Sequencer().Dispensers()); got != 1 {
		t.Errorf("expected one dispenser, got %d", got)
	}
	if !strings.Contains(m.View(), "bpm") {
		t.Error("scene view should show the tempo")
	}

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateMenu {
		t.Error("escape with nothing selected should return to the menu")
	}
	if m.engine.Sequencer().Running() {
		t.Error("leaving the scene should stop the transport")
	}
}

func TestTransportAndPatternKeys(t *testing.T) {
	m := openPreset(t, "default", Options{})
	seq := m.engine.Sequencer()
	running := seq.Running()

	m = send(t, m, runes(" "))
	if seq.Running() == running {
		t.Error("space should toggle the transport")
	}

	id := seq.Dispensers()[0]
	before, _ := seq.Pattern(id)
	m = send(t, m, runes("l"), runes("x"))
	after, _ := seq.Pattern(id)
	if after[1] == before[1] {
		t.Error("x should toggle the step under the caret")
	}
	if after[0] != before[0] {
		t.Error("other steps should be untouched")
	}

	m = send(t, m, runes("h"), runes("h"))
	if m.step != sequencer.Steps-1 {
		t.Errorf("caret should wrap to the last step, at %d", m.step)
	}
}

func TestTempoAndTimbreKeys(t *testing.T) {
	var chosen []string
	cfg := config.DefaultConfig()
	m := openPreset(t, "default", Options{Config: cfg, OnTimbre: func(name string) { chosen = append(chosen, name) }})

	tempo := m.engine.Tempo()
	m = send(t, m, runes("+"))
	if m.engine.Tempo() != tempo+tempoStep {
		t.Errorf("tempo = %d, want %d", m.engine.Tempo(), tempo+tempoStep)
	}
	m = send(t, m, runes("-"), runes("-"))
	if m.engine.Tempo() != tempo-tempoStep {
		t.Errorf("tempo = %d, want %d", m.engine.Tempo(), tempo-tempoStep)
	}

	m = send(t, m, runes("t"))
	if len(chosen) != 1 || chosen[0] != nextTimbre(config.DefaultTimbre) || m.timbre != chosen[0] {
		t.Errorf("timbre callback got %v, model has %s", chosen, m.timbre)
	}
}

func TestTickAdvancesEngine(t *testing.T) {
	m := openPreset(t, "default", Options{FPS: 60})
	m = send(t, m, tickMsg(time.Now()), tickMsg(time.Now()))
	if m.engine.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", m.engine.Frames())
	}
	if len(m.activity) != 2 {
		t.Errorf("expected activity history per frame, got %d", len(m.activity))
	}
}

func TestShiftDragDrawsBeam(t *testing.T) {
	m := openPreset(t, "default", Options{})
	walls := m.engine.World().Len(dynamo.KindWall)

	y := headerRows + m.canvas.Height/2
	m = send(t, m,
		tea.MouseMsg{X: 10, Y: y, Shift: true, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft},
		tea.MouseMsg{X: 25, Y: y, Action: tea.MouseActionMotion},
		tea.MouseMsg{X: 40, Y: y, Action: tea.MouseActionRelease},
	)
	if got := m.engine.World().Len(dynamo.KindWall); got != walls+1 {
		t.Fatalf("expected a new beam, walls %d -> %d", walls, got)
	}
	if m.engine.Voices().Bound() != walls+1 {
		t.Errorf("new beam should be bound to a voice, %d bound", m.engine.Voices().Bound())
	}
}

func TestCtrlClickPlacesDispenser(t *testing.T) {
	m := openPreset(t, "default", Options{})
	y := headerRows + 2
	m = send(t, m, tea.MouseMsg{X: 5, Y: y, Ctrl: true, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if got := len(m.engine.Sequencer().Dispensers()); got != 2 {
		t.Fatalf("expected two dispensers, got %d", got)
	}

	m = send(t, m, tea.KeyMsg{Type: tea.KeyDelete})
	if got := len(m.engine.Sequencer().Dispensers()); got != 1 {
		t.Errorf("delete should remove the selected dispenser, %d left", got)
	}
}

func TestLiveRendererThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, 30, 8, 10)
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }

	e := sim.New(config.DefaultConfig(), nil)
	defer e.Dispose()
	if err := e.LoadScene(config.DefaultScene()); err != nil {
		t.Fatal(err)
	}

	r.OnFrame(e.Snapshot())
	first := buf.Len()
	if first == 0 || !strings.Contains(buf.String(), "balls") {
		t.Fatalf("expected a rendered frame, got %q", buf.String())
	}

	now = now.Add(10 * time.Millisecond)
	r.OnFrame(e.Snapshot())
	if buf.Len() != first {
		t.Error("frames inside the throttle window should be dropped")
	}

	now = now.Add(100 * time.Millisecond)
	r.OnFrame(e.Snapshot())
	if buf.Len() == first {
		t.Error("expected a second frame after the window")
	}
}
