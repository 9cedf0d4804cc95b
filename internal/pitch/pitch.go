// Package pitch maps beam length to a note on a fixed scale and a note to a
// display color.
//
// Every function here is pure and total: out-of-range or non-finite input
// maps to a scale note, never to an error.
package pitch

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	DefaultMinLength = 0.2
	DefaultMaxLength = 3.0

	colorSaturation = 0.75
	colorValue      = 0.95
)

type Note struct {
	Index     int     `json:"index" yaml:"index"`
	Midi      int     `json:"midi" yaml:"midi"`
	Name      string  `json:"name" yaml:"name"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

func (n Note) String() string {
	return fmt.Sprintf("%s (%.2f Hz)", n.Name, n.Frequency)
}

var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Scale is C major from C4 to C6, low to high.
var Scale = buildScale([]int{60, 62, 64, 65, 67, 69, 71, 72, 74, 76, 77, 79, 81, 83, 84})

// pentatonic holds the Scale indices of C4 D4 E4 G4 A4.
var pentatonic = [...]int{0, 1, 2, 4, 5}

func buildScale(midi []int) []Note {
	notes := make([]Note, len(midi))
	for i, m := range midi {
		notes[i] = Note{Index: i, Midi: m, Name: MidiName(m), Frequency: Frequency(m)}
	}
	return notes
}

// Frequency returns the equal-tempered frequency of a MIDI note, A4 = 440 Hz.
func Frequency(midi int) float64 {
	return 440.0 * math.Pow(2, float64(midi-69)/12.0)
}

func MidiName(midi int) string {
	if midi < 0 {
		return "?"
	}
	return fmt.Sprintf("%s%d", names[midi%12], midi/12-1)
}

// At returns the scale note at index, clamped into the scale.
func At(index int) Note {
	if index < 0 {
		index = 0
	}
	if index >= len(Scale) {
		index = len(Scale) - 1
	}
	return Scale[index]
}

func Lowest() Note { return Scale[0] }

// ByMidi finds the scale note with the given MIDI number.
func ByMidi(midi int) (Note, bool) {
	for _, n := range Scale {
		if n.Midi == midi {
			return n, true
		}
	}
	return Note{}, false
}

// MapLengthToNote quantizes length within [minLength, maxLength] onto Scale.
// A collapsed or inverted range yields the lowest note.
func MapLengthToNote(length, minLength, maxLength float64) Note {
	if math.IsNaN(minLength) || math.IsNaN(maxLength) || maxLength <= minLength {
		return Lowest()
	}
	if math.IsNaN(length) {
		length = minLength
	}
	if length < minLength {
		length = minLength
	}
	if length > maxLength {
		length = maxLength
	}

	pos := (length - minLength) / (maxLength - minLength)
	return At(int(math.Floor(pos * float64(len(Scale)))))
}

// NoteToColor places scale neighbours at neighbouring hues.
func NoteToColor(n Note) colorful.Color {
	idx := At(n.Index).Index
	hue := float64(idx) / float64(len(Scale)) * 360.0
	return colorful.Hsv(hue, colorSaturation, colorValue)
}

func NoteToHex(n Note) string {
	return NoteToColor(n).Hex()
}

// IntensityNote picks a pentatonic note for an impact with no bound geometry.
// Harder impacts give higher notes.
func IntensityNote(intensity float64) Note {
	if math.IsNaN(intensity) || intensity < 0 {
		intensity = 0
	}
	i := int(math.Floor(intensity * float64(len(pentatonic))))
	if i >= len(pentatonic) {
		i = len(pentatonic) - 1
	}
	return Scale[pentatonic[i]]
}

// Range is a length window with its own mapping, as configured per engine.
type Range struct {
	MinLength float64 `yaml:"min_length" json:"min_length"`
	MaxLength float64 `yaml:"max_length" json:"max_length"`
}

func DefaultRange() Range {
	return Range{MinLength: DefaultMinLength, MaxLength: DefaultMaxLength}
}

func (r Range) Map(length float64) Note {
	return MapLengthToNote(length, r.MinLength, r.MaxLength)
}
