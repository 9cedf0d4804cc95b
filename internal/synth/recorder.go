package synth

import (
	"sync"
	"time"
)

type Percussive struct {
	Intensity float64
	At        time.Time
}

// Recorder keeps every request it receives. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	now   func() time.Time
	notes []NoteRequest
	hits  []Percussive
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderWithClock stamps requests that carry no start time with now().
func NewRecorderWithClock(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

func (r *Recorder) PlayNote(req NoteRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.At.IsZero() {
		req.At = r.now()
	}
	r.notes = append(r.notes, req)
	return nil
}

func (r *Recorder) PlayPercussive(intensity float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, Percussive{Intensity: intensity, At: r.now()})
	return nil
}

func (r *Recorder) Notes() []NoteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NoteRequest, len(r.notes))
	copy(out, r.notes)
	return out
}

func (r *Recorder) Percussive() []Percussive {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Percussive, len(r.hits))
	copy(out, r.hits)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notes = nil
	r.hits = nil
	r.mu.Unlock()
}
