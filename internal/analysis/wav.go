package analysis

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

const wavFormatPCM = 1

// ReadWAV decodes a WAV file into mono samples, averaging channels.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

func DecodeWAV(r io.Reader) ([]float64, int, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(w.NumChannels)
	if channels < 1 {
		return nil, 0, fmt.Errorf("decode wav: %d channels", channels)
	}

	interleaved, err := w.ReadFloats(w.Samples)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav samples: %w", err)
	}
	// go-dsp scales integer PCM onto [0, 1].
	if w.AudioFormat == wavFormatPCM {
		for i, v := range interleaved {
			interleaved[i] = 2*v - 1
		}
	}

	mono := make([]float64, len(interleaved)/channels)
	for i := range mono {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[i*channels+c])
		}
		mono[i] = sum / float64(channels)
	}
	return mono, int(w.SampleRate), nil
}

// Report summarises a rendered clip.
type Report struct {
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	RMS        float64 `json:"rms"`
	Peak       float64 `json:"peak"`
	Peaks      []Peak  `json:"peaks"`
}

// Analyze measures level and the strongest partials. The spectrum is taken
// over the largest power-of-two prefix of the clip.
func Analyze(samples []float64, sampleRate, count int) Report {
	r := Report{SampleRate: sampleRate}
	if len(samples) == 0 || sampleRate <= 0 {
		return r
	}
	r.Duration = float64(len(samples)) / float64(sampleRate)

	sum := 0.0
	for _, s := range samples {
		sum += s * s
		r.Peak = math.Max(r.Peak, math.Abs(s))
	}
	r.RMS = math.Sqrt(sum / float64(len(samples)))

	n := 1
	for n*2 <= len(samples) {
		n *= 2
	}
	r.Peaks = DominantFrequencies(samples[:n], sampleRate, count)
	return r
}
