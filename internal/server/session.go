// Package server exposes one running scene over HTTP and a websocket: the
// REST routes edit the scene and drive the transport, the socket streams
// snapshots, notes and steps, and accepts the same edits as commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/sequencer"
	"github.com/san-kum/bounce/internal/sim"
	"github.com/san-kum/bounce/internal/synth"
)

var ErrUnknownCommand = errors.New("server: unknown command")

// Session serializes access to one engine between the frame loop, HTTP
// handlers and websocket commands.
type Session struct {
	mu     sync.Mutex
	engine *sim.Engine
	hub    *Hub
	logger *slog.Logger

	fps       int
	snapEvery int
	unsubs    []func()
}

type SessionOption func(*Session)

// WithSnapshotRate sets how many snapshots per second reach clients.
func WithSnapshotRate(hz int) SessionOption {
	return func(s *Session) {
		if hz > 0 {
			s.snapEvery = max(s.fps/hz, 1)
		}
	}
}

func NewSession(cfg *config.Config, out synth.Synthesizer, hub *Hub, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fps := config.DefaultFPS
	if cfg != nil && cfg.Run.FPS > 0 {
		fps = cfg.Run.FPS
	}
	s := &Session{
		engine:    sim.New(cfg, out, sim.WithLogger(logger), sim.WithWallClock()),
		hub:       hub,
		logger:    logger,
		fps:       fps,
		snapEvery: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubs = append(s.unsubs,
		s.engine.Triggers().Subscribe(func(rec sim.TriggerRecord) {
			hub.Broadcast(Message{Type: "note", Data: rec})
		}),
		s.engine.Sequencer().Steps().Subscribe(func(ev sequencer.StepEvent) {
			hub.Broadcast(Message{Type: "step", Data: stepMessage{Step: ev.Step, Spawned: len(ev.Spawned)}})
		}),
	)
	return s
}

type stepMessage struct {
	Step    int `json:"step"`
	Spawned int `json:"spawned"`
}

// Do runs fn with exclusive access to the engine.
func (s *Session) Do(fn func(e *sim.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine.Disposed() {
		return dynamo.ErrDisposed
	}
	return fn(s.engine)
}

// Run steps the engine at the session frame rate until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()
	dt := 1 / float64(s.fps)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			if s.engine.Disposed() {
				s.mu.Unlock()
				return dynamo.ErrDisposed
			}
			snap := s.engine.Frame(dt)
			s.mu.Unlock()
			if snap.Frame%s.snapEvery == 0 {
				s.hub.Broadcast(Message{Type: "snapshot", Data: snap})
			}
		}
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.engine.Dispose()
}

type tempoRequest struct {
	BPM int `json:"bpm" binding:"required"`
}

type stepRequest struct {
	Dispenser dynamo.BodyID `json:"dispenser"`
	Step      int           `json:"step"`
	On        *bool         `json:"on,omitempty"`
}

type wallRequest struct {
	From config.Point `json:"from"`
	To   config.Point `json:"to"`
}

type dispenserRequest struct {
	At      config.Point `json:"at"`
	Pattern string       `json:"pattern"`
}

type removeRequest struct {
	ID dynamo.BodyID `json:"id"`
}

type presetRequest struct {
	Name string `json:"name"`
}

// Command applies a websocket command. Replies go back to the sender only
// on error; the effects reach everyone through the next snapshot.
func (s *Session) Command(cmd Command) error {
	decode := func(v any) error {
		if len(cmd.Data) == 0 {
			return fmt.Errorf("%s: missing data", cmd.Type)
		}
		if err := json.Unmarshal(cmd.Data, v); err != nil {
			return fmt.Errorf("%s: %w", cmd.Type, err)
		}
		return nil
	}

	switch cmd.Type {
	case "start", "stop":
		return s.Do(func(e *sim.Engine) error {
			if cmd.Type == "start" {
				e.Sequencer().Start()
			} else {
				e.Sequencer().Stop()
			}
			return nil
		})
	case "tempo":
		var req tempoRequest
		if err := decode(&req); err != nil {
			return err
		}
		return s.Do(func(e *sim.Engine) error {
			e.SetTempo(req.BPM)
			return nil
		})
	case "step":
		var req stepRequest
		if err := decode(&req); err != nil {
			return err
		}
		_, err := s.SetStep(req)
		return err
	case "wall":
		var req wallRequest
		if err := decode(&req); err != nil {
			return err
		}
		_, err := s.AddWall(req)
		return err
	case "dispenser":
		var req dispenserRequest
		if err := decode(&req); err != nil {
			return err
		}
		_, err := s.AddDispenser(req)
		return err
	case "remove":
		var req removeRequest
		if err := decode(&req); err != nil {
			return err
		}
		return s.Remove(req.ID)
	case "preset":
		var req presetRequest
		if err := decode(&req); err != nil {
			return err
		}
		return s.LoadPreset(req.Name)
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
	}
}

var ErrUnknownPreset = errors.New("server: unknown preset")

func (s *Session) LoadPreset(name string) error {
	if _, ok := config.Presets[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownPreset, name)
	}
	scene := config.GetPreset(name).Scene
	return s.Do(func(e *sim.Engine) error { return e.LoadScene(scene) })
}

func (s *Session) AddWall(req wallRequest) (dynamo.BodyID, error) {
	var id dynamo.BodyID
	err := s.Do(func(e *sim.Engine) error {
		var err error
		id, err = e.World().CreateWall(req.From.Vec3(), req.To.Vec3())
		return err
	})
	return id, err
}

func (s *Session) AddDispenser(req dispenserRequest) (dynamo.BodyID, error) {
	var id dynamo.BodyID
	err := s.Do(func(e *sim.Engine) error {
		var err error
		id, err = e.World().CreateDispenser(req.At.Vec3())
		if err != nil {
			return err
		}
		if req.Pattern != "" {
			e.Sequencer().SetPattern(id, config.ParsePattern(req.Pattern))
		}
		return nil
	})
	return id, err
}

func (s *Session) Remove(id dynamo.BodyID) error {
	return s.Do(func(e *sim.Engine) error { return e.World().RemoveBody(id) })
}

// SetStep sets or toggles one step and returns the resulting state.
func (s *Session) SetStep(req stepRequest) (bool, error) {
	var on bool
	err := s.Do(func(e *sim.Engine) error {
		seq := e.Sequencer()
		if !seq.HasDispenser(req.Dispenser) {
			return &dynamo.BodyError{ID: req.Dispenser, Wrapped: dynamo.ErrUnknownBody}
		}
		if req.On == nil {
			seq.ToggleStep(req.Dispenser, req.Step)
		} else {
			seq.SetStep(req.Dispenser, req.Step, *req.On)
		}
		on = seq.IsStepActive(req.Dispenser, req.Step)
		return nil
	})
	return on, err
}
