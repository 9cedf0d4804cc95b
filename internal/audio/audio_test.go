package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/bounce/internal/analysis"
	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/voice"
)

func TestEveryTimbreIsDefined(t *testing.T) {
	for _, name := range config.Timbres {
		if got := LookupTimbre(name); got.Name != name {
			t.Errorf("timbre %s resolved to %q", name, got.Name)
		}
	}
	if got := LookupTimbre("kazoo"); got.Name != config.DefaultTimbre {
		t.Errorf("unknown timbre resolved to %q", got.Name)
	}
}

func TestVoiceColors(t *testing.T) {
	seen := map[float64]bool{}
	for v := 0; v < 4; v++ {
		c := colorFor(voice.Voice(v))
		if seen[c.pan] {
			t.Errorf("voice %d shares a pan position", v)
		}
		seen[c.pan] = true
		if c.octave != 0 {
			t.Errorf("voice %d should not shift octave", v)
		}
	}
	if colorFor(voice.Voice(5)).octave != 1 {
		t.Error("voice 5 should sit an octave up")
	}
}

func TestSynthPlaysAndDrains(t *testing.T) {
	s := NewSynth("pluck", 44100, 0.8)
	req := synth.NoteRequest{Note: pitch.At(9), Duration: 50 * time.Millisecond, Velocity: 1}
	if err := s.PlayNote(req); err != nil {
		t.Fatalf("play: %v", err)
	}
	if s.Active() != 1 {
		t.Fatalf("expected 1 active note, got %d", s.Active())
	}

	buf := make([][2]float64, 2048)
	n, ok := s.Stream(buf)
	if n != len(buf) || !ok {
		t.Fatalf("stream returned (%d, %v)", n, ok)
	}
	peak := 0.0
	for _, frame := range buf {
		peak = math.Max(peak, math.Abs(frame[0])+math.Abs(frame[1]))
	}
	if peak == 0 {
		t.Error("expected audible output")
	}

	for i := 0; i < 20; i++ {
		s.Stream(buf)
	}
	if s.Active() != 0 {
		t.Errorf("expected the note to finish, %d still active", s.Active())
	}
}

func TestSynthPolyphonyLimit(t *testing.T) {
	s := NewSynth("glass", 44100, 1)
	req := synth.NoteRequest{Note: pitch.At(0), Duration: time.Second, Velocity: 1}
	for i := 0; i < MaxPolyphony; i++ {
		if err := s.PlayNote(req); err != nil {
			t.Fatalf("note %d: %v", i, err)
		}
	}
	if err := s.PlayNote(req); !errors.Is(err, ErrPolyphony) {
		t.Errorf("expected ErrPolyphony, got %v", err)
	}
	if err := s.PlayPercussive(1); !errors.Is(err, ErrPolyphony) {
		t.Errorf("expected ErrPolyphony for a hit, got %v", err)
	}
}

func TestRenderTimeline(t *testing.T) {
	clock := 0.0
	tl := NewTimeline(func() float64 { return clock })

	clock = 0.25
	tl.PlayNote(synth.NoteRequest{Note: pitch.At(9), Duration: 125 * time.Millisecond, Velocity: 0.9})
	tl.PlayPercussive(0.6)
	clock = 5
	tl.PlayNote(synth.NoteRequest{Note: pitch.At(0), Duration: 125 * time.Millisecond, Velocity: 0.9})

	path := filepath.Join(t.TempDir(), "render.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	err = Render(f, tl, RenderOptions{Timbre: LookupTimbre("marimba"), SampleRate: 44100, Volume: 0.8, Seconds: 1})
	f.Close()
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	samples, rate, err := analysis.ReadWAV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rate != 44100 || len(samples) != 44100 {
		t.Fatalf("expected one second at 44100 Hz, got %d samples at %d", len(samples), rate)
	}
	for i := 0; i < 44100/4-1; i++ {
		if samples[i] != 0 {
			t.Fatalf("expected silence before the note, sample %d = %f", i, samples[i])
		}
	}

	report := analysis.Analyze(samples, rate, 1)
	if len(report.Peaks) == 0 || report.Peaks[0].Note != "E5" {
		t.Errorf("expected E5 to dominate, got %+v", report.Peaks)
	}
}
