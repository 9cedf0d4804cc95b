package pitch

import (
	"math"
	"testing"
)

func TestScale(t *testing.T) {
	if len(Scale) != 15 {
		t.Fatalf("expected 15 notes, got %d", len(Scale))
	}
	if Scale[0].Name != "C4" || Scale[14].Name != "C6" {
		t.Errorf("expected C4..C6, got %s..%s", Scale[0].Name, Scale[14].Name)
	}
	if math.Abs(Frequency(69)-440.0) > 1e-9 {
		t.Errorf("expected A4 = 440Hz, got %f", Frequency(69))
	}
	for i := 1; i < len(Scale); i++ {
		if Scale[i].Frequency <= Scale[i-1].Frequency {
			t.Errorf("scale not ascending at %d", i)
		}
	}
}

func TestMapLengthToNote_Scenario(t *testing.T) {
	n := MapLengthToNote(2.0, 0.2, 3.0)
	if n.Index != 9 {
		t.Errorf("expected index 9, got %d", n.Index)
	}
	if n.Name != "E5" {
		t.Errorf("expected E5, got %s", n.Name)
	}
}

func TestMapLengthToNote_Edges(t *testing.T) {
	tests := []struct {
		name     string
		length   float64
		min, max float64
		expected int
	}{
		{"at min", 0.2, 0.2, 3.0, 0},
		{"at max", 3.0, 0.2, 3.0, 14},
		{"below", -5, 0.2, 3.0, 0},
		{"above", 100, 0.2, 3.0, 14},
		{"collapsed range", 1.0, 1.0, 1.0, 0},
		{"inverted range", 1.0, 3.0, 0.2, 0},
		{"nan length", math.NaN(), 0.2, 3.0, 0},
		{"inf length", math.Inf(1), 0.2, 3.0, 14},
	}

	for _, tt := range tests {
		n := MapLengthToNote(tt.length, tt.min, tt.max)
		if n.Index != tt.expected {
			t.Errorf("%s: expected index %d, got %d", tt.name, tt.expected, n.Index)
		}
	}
}

func TestMapLengthToNote_ClampEquivalence(t *testing.T) {
	min, max := 0.2, 3.0
	for _, l := range []float64{-10, -0.1, 0, 0.19, 3.01, 4, 50} {
		clamped := math.Max(min, math.Min(max, l))
		if MapLengthToNote(l, min, max) != MapLengthToNote(clamped, min, max) {
			t.Errorf("length %f maps differently from its clamped value %f", l, clamped)
		}
	}
}

func TestMapLengthToNote_Monotonic(t *testing.T) {
	prev := -1
	for l := 0.2; l <= 3.0; l += 0.001 {
		idx := MapLengthToNote(l, 0.2, 3.0).Index
		if idx < prev {
			t.Fatalf("index decreased at length %f: %d < %d", l, idx, prev)
		}
		prev = idx
	}
	if prev != 14 {
		t.Errorf("expected sweep to reach the top note, got %d", prev)
	}
}

func TestNoteToColor(t *testing.T) {
	h0, _, _ := NoteToColor(Scale[0]).Hsv()
	h5, _, _ := NoteToColor(Scale[5]).Hsv()
	if math.Abs(h0) > 0.5 {
		t.Errorf("expected hue 0 for first note, got %f", h0)
	}
	if math.Abs(h5-120) > 0.5 {
		t.Errorf("expected hue 120 for index 5, got %f", h5)
	}
	if NoteToHex(Scale[3]) != NoteToHex(Scale[3]) {
		t.Error("color mapping not deterministic")
	}
}

func TestIntensityNote(t *testing.T) {
	tests := []struct {
		intensity float64
		expected  string
	}{
		{0, "C4"},
		{0.25, "D4"},
		{0.5, "E4"},
		{0.7, "G4"},
		{1.0, "A4"},
		{-1, "C4"},
		{5, "A4"},
	}
	for _, tt := range tests {
		if got := IntensityNote(tt.intensity).Name; got != tt.expected {
			t.Errorf("intensity %f: expected %s, got %s", tt.intensity, tt.expected, got)
		}
	}
}

func TestByMidi(t *testing.T) {
	for _, n := range Scale {
		got, ok := ByMidi(n.Midi)
		if !ok || got != n {
			t.Errorf("ByMidi(%d) = %v, %v", n.Midi, got, ok)
		}
	}
	if _, ok := ByMidi(61); ok {
		t.Error("C#4 is not in the scale")
	}
}
