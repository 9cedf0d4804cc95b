package analysis

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/san-kum/bounce/internal/pitch"
)

// Peak is one local maximum of the magnitude spectrum.
type Peak struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
	Midi      int     `json:"midi"`
	Note      string  `json:"note"`
	Cents     float64 `json:"cents"`
}

// PowerSpectrum returns the magnitude of the first half of the FFT of the
// Hann-windowed data.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	w := window.Hann(len(data))
	x := make([]float64, len(data))
	for i, v := range data {
		x[i] = v * w[i]
	}
	spec := fft.FFTReal(x)

	ps := make([]float64, len(spec)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// BinFrequency is the centre frequency of bin i in an n-point transform.
func BinFrequency(i, n, sampleRate int) float64 {
	return float64(i) * float64(sampleRate) / float64(n)
}

// DominantFrequencies returns up to count spectral peaks, strongest first.
// Peak frequencies are refined by parabolic interpolation.
func DominantFrequencies(data []float64, sampleRate, count int) []Peak {
	ps := PowerSpectrum(data)
	if len(ps) < 3 || count <= 0 {
		return nil
	}
	n := len(data)

	var peaks []Peak
	for i := 1; i < len(ps)-1; i++ {
		if ps[i] <= ps[i-1] || ps[i] < ps[i+1] || ps[i] == 0 {
			continue
		}
		a, b, c := ps[i-1], ps[i], ps[i+1]
		offset := 0.0
		if d := a - 2*b + c; d != 0 {
			offset = 0.5 * (a - c) / d
		}
		freq := (float64(i) + offset) * float64(sampleRate) / float64(n)
		midi, name, cents := NearestNote(freq)
		peaks = append(peaks, Peak{Frequency: freq, Magnitude: b, Midi: midi, Note: name, Cents: cents})
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Magnitude > peaks[j].Magnitude })
	if len(peaks) > count {
		peaks = peaks[:count]
	}
	return peaks
}

// NearestNote maps a frequency to the closest MIDI note and the offset from
// it in cents.
func NearestNote(freq float64) (int, string, float64) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, "", 0
	}
	exact := 69 + 12*math.Log2(freq/440)
	midi := int(math.Round(exact))
	return midi, pitch.MidiName(midi), (exact - float64(midi)) * 100
}
