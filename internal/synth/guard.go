package synth

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/san-kum/bounce/internal/dynamo"
)

type Stats struct {
	Played  int64 `json:"played"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Guard forwards requests to a backend only when its gate is open and turns
// backend errors and panics into log lines. It never returns an error.
type Guard struct {
	backend Synthesizer
	gate    *Gate
	logger  *slog.Logger

	played  atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewGuard(backend Synthesizer, gate *Gate, logger *slog.Logger) *Guard {
	if backend == nil {
		backend = Nop{}
	}
	if gate == nil {
		gate = OpenGate()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guard{backend: backend, gate: gate, logger: logger}
}

func (g *Guard) Gate() *Gate { return g.gate }

func (g *Guard) PlayNote(req NoteRequest) error {
	g.call("note", func() error { return g.backend.PlayNote(req) })
	return nil
}

func (g *Guard) PlayPercussive(intensity float64) error {
	g.call("percussive", func() error { return g.backend.PlayPercussive(intensity) })
	return nil
}

func (g *Guard) call(kind string, fn func() error) {
	if !g.gate.Ready() {
		g.dropped.Add(1)
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("synth panic: %v", r)
			}
		}()
		return fn()
	}()

	if err != nil {
		g.failed.Add(1)
		g.logger.Warn("playback failed", "kind", kind, "err", err)
		return
	}
	g.played.Add(1)
}

func (g *Guard) Stats() Stats {
	return Stats{
		Played:  g.played.Load(),
		Dropped: g.dropped.Load(),
		Failed:  g.failed.Load(),
	}
}

// Failing is a backend that rejects every request; useful before a real
// device is available.
type Failing struct{ Err error }

func (f Failing) PlayNote(NoteRequest) error {
	if f.Err != nil {
		return f.Err
	}
	return dynamo.ErrNotReady
}

func (f Failing) PlayPercussive(float64) error {
	if f.Err != nil {
		return f.Err
	}
	return dynamo.ErrNotReady
}
