package audio

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/san-kum/bounce/internal/synth"
)

type TimedNote struct {
	At  float64
	Req synth.NoteRequest
}

type TimedHit struct {
	At        float64
	Intensity float64
}

// Timeline records playback requests against a clock, usually the
// simulation clock of a headless run, for rendering afterwards.
type Timeline struct {
	mu    sync.Mutex
	now   func() float64
	notes []TimedNote
	hits  []TimedHit
}

func NewTimeline(now func() float64) *Timeline {
	return &Timeline{now: now}
}

// SetClock replaces the clock, for engines built after the timeline.
func (t *Timeline) SetClock(now func() float64) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Timeline) at() float64 {
	if t.now == nil {
		return 0
	}
	return t.now()
}

func (t *Timeline) PlayNote(req synth.NoteRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = append(t.notes, TimedNote{At: t.at(), Req: req})
	return nil
}

func (t *Timeline) PlayPercussive(intensity float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits = append(t.hits, TimedHit{At: t.at(), Intensity: intensity})
	return nil
}

func (t *Timeline) Notes() []TimedNote {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]TimedNote(nil), t.notes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

func (t *Timeline) Hits() []TimedHit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TimedHit(nil), t.hits...)
}

// RenderOptions control an offline render.
type RenderOptions struct {
	Timbre     Timbre
	SampleRate int
	Volume     float64
	Seconds    float64
	// Percussion includes the dispenser hits.
	Percussion bool
}

// Render mixes the timeline into a 16-bit stereo WAV of exactly
// opts.Seconds.
func Render(w io.WriteSeeker, tl *Timeline, opts RenderOptions) error {
	rate := beep.SampleRate(opts.SampleRate)
	total := rate.N(seconds(opts.Seconds))

	streams := []beep.Streamer{beep.Silence(total)}
	for _, n := range tl.Notes() {
		offset := rate.N(seconds(n.At))
		if offset >= total {
			continue
		}
		streams = append(streams, beep.Seq(beep.Silence(offset), noteFor(opts.Timbre, n.Req, opts.Volume, rate)))
	}
	if opts.Percussion {
		for i, h := range tl.Hits() {
			offset := rate.N(seconds(h.At))
			if offset >= total {
				continue
			}
			streams = append(streams, beep.Seq(beep.Silence(offset), HitStreamer(h.Intensity*opts.Volume, int64(i+1), rate)))
		}
	}

	mix := beep.Take(total, beep.Mix(streams...))
	return wav.Encode(w, mix, beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2})
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
