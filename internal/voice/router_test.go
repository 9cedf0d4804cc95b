package voice

import (
	"testing"
	"time"

	"github.com/san-kum/bounce/internal/pitch"
)

func TestAssignAndLookup(t *testing.T) {
	r := NewRouter(DefaultConfig())
	note := pitch.At(9)

	r.Assign(7, 2, note)

	b, ok := r.Binding(7)
	if !ok {
		t.Fatal("expected binding")
	}
	if b.Voice != 2 || b.Note != note {
		t.Errorf("unexpected binding %+v", b)
	}
	if r.VoiceFor(8) != DefaultVoice {
		t.Error("unbound geometry should use the default voice")
	}

	r.Unassign(7)
	if _, ok := r.Binding(7); ok {
		t.Error("expected binding removed")
	}
}

func TestRetuneKeepsVoice(t *testing.T) {
	r := NewRouter(DefaultConfig())
	r.Assign(1, 3, pitch.At(2))

	if !r.Retune(1, pitch.At(11)) {
		t.Fatal("expected retune to succeed")
	}
	b, _ := r.Binding(1)
	if b.Voice != 3 || b.Note.Index != 11 {
		t.Errorf("expected voice 3 note 11, got %+v", b)
	}
	if r.Retune(99, pitch.At(0)) {
		t.Error("retune of unbound id should fail")
	}
}

func TestVoiceClamping(t *testing.T) {
	r := NewRouter(Config{Voices: 2, TempoRelative: true})
	r.Assign(1, 9, pitch.At(0))
	if v := r.VoiceFor(1); v != 1 {
		t.Errorf("expected voice clamped to 1, got %d", v)
	}

	r = NewRouter(Config{Voices: 0})
	if r.Voices() != 1 {
		t.Errorf("expected at least one voice, got %d", r.Voices())
	}
}

func TestNextVoiceRoundRobin(t *testing.T) {
	r := NewRouter(Config{Voices: 3, TempoRelative: true})
	want := []Voice{0, 1, 2, 0, 1}
	for i, w := range want {
		if got := r.NextVoice(); got != w {
			t.Errorf("call %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestTolerance(t *testing.T) {
	r := NewRouter(DefaultConfig())
	r.SetTempo(120)
	if r.Tolerance() != 62500*time.Microsecond {
		t.Errorf("expected 62.5ms at 120 BPM, got %v", r.Tolerance())
	}
	if r.Sixteenth() != 125*time.Millisecond {
		t.Errorf("expected 125ms sixteenth, got %v", r.Sixteenth())
	}

	r.SetTempo(240)
	if r.Tolerance() != 31250*time.Microsecond {
		t.Errorf("expected tolerance to shrink with tempo, got %v", r.Tolerance())
	}

	fixed := NewRouter(Config{Voices: 2, Tolerance: 50 * time.Millisecond})
	fixed.SetTempo(200)
	if fixed.Tolerance() != 50*time.Millisecond {
		t.Errorf("expected fixed tolerance, got %v", fixed.Tolerance())
	}
}

func TestShouldTriggerDebounce(t *testing.T) {
	r := NewRouter(DefaultConfig())
	r.SetTempo(120)
	note := pitch.At(4)
	t0 := time.Unix(100, 0)

	if !r.ShouldTrigger(0, note, t0) {
		t.Fatal("first trigger should pass")
	}
	if r.ShouldTrigger(0, note, t0.Add(30*time.Millisecond)) {
		t.Error("repeat within tolerance should be suppressed")
	}
	// suppressed attempts do not move the window
	if !r.ShouldTrigger(0, note, t0.Add(70*time.Millisecond)) {
		t.Error("repeat after tolerance should pass")
	}
}

func TestShouldTriggerIndependentVoicesAndNotes(t *testing.T) {
	r := NewRouter(DefaultConfig())
	t0 := time.Unix(100, 0)

	r.ShouldTrigger(0, pitch.At(4), t0)
	if !r.ShouldTrigger(1, pitch.At(4), t0) {
		t.Error("same note on another voice should pass")
	}
	if !r.ShouldTrigger(0, pitch.At(5), t0.Add(time.Millisecond)) {
		t.Error("different note on the same voice should pass")
	}
}

func TestClearResetsHistory(t *testing.T) {
	r := NewRouter(DefaultConfig())
	t0 := time.Unix(100, 0)
	r.Assign(1, 1, pitch.At(0))
	r.ShouldTrigger(0, pitch.At(0), t0)

	r.Clear()

	if r.Bound() != 0 {
		t.Errorf("expected no bindings, got %d", r.Bound())
	}
	if !r.ShouldTrigger(0, pitch.At(0), t0) {
		t.Error("history should be cleared")
	}
}
