package collision

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/voice"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup() (*Router, *voice.Router, *synth.Recorder, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	voices := voice.NewRouter(voice.DefaultConfig())
	rec := synth.NewRecorder()
	r := New(voices, rec, DefaultConfig(), WithClock(clock.now))
	return r, voices, rec, clock
}

func hit(wall dynamo.BodyID, speed float64) physics.CollisionEvent {
	return physics.CollisionEvent{
		A: 100, B: wall,
		KindA: dynamo.KindBall, KindB: dynamo.KindWall,
		ImpactVelocity: speed,
	}
}

func TestBoundWallPlaysItsNote(t *testing.T) {
	r, voices, rec, _ := setup()
	voices.Assign(7, 2, pitch.At(9))

	r.OnCollision(hit(7, 5))

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	n := notes[0]
	if n.Voice != 2 || n.Note.Index != 9 {
		t.Errorf("expected voice 2 note 9, got voice %d note %d", n.Voice, n.Note.Index)
	}
	if n.Velocity != 0.5 {
		t.Errorf("expected velocity 0.5, got %f", n.Velocity)
	}
	if n.Duration != 125*time.Millisecond {
		t.Errorf("expected a sixteenth at 120 BPM, got %v", n.Duration)
	}
}

func TestBindingOnEitherSide(t *testing.T) {
	r, voices, rec, _ := setup()
	voices.Assign(7, 1, pitch.At(3))

	ev := hit(7, 5)
	ev.A, ev.B = ev.B, ev.A
	ev.KindA, ev.KindB = ev.KindB, ev.KindA
	r.OnCollision(ev)

	if notes := rec.Notes(); len(notes) != 1 || notes[0].Note.Index != 3 {
		t.Errorf("expected bound note from side A, got %+v", notes)
	}
}

func TestUnboundUsesDefaultVoiceAndPentatonic(t *testing.T) {
	r, _, rec, _ := setup()

	r.OnCollision(physics.CollisionEvent{A: 1, B: 2, KindA: dynamo.KindBall, KindB: dynamo.KindBoundary, ImpactVelocity: 10})

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].Voice != voice.DefaultVoice {
		t.Errorf("expected default voice, got %d", notes[0].Voice)
	}
	if notes[0].Note != pitch.IntensityNote(1.0) {
		t.Errorf("expected top pentatonic note, got %s", notes[0].Note.Name)
	}
}

func TestIntensityClamped(t *testing.T) {
	r, _, _, _ := setup()
	tests := []struct {
		impact, expected float64
	}{
		{0, 0},
		{5, 0.5},
		{-5, 0.5},
		{50, 1},
	}
	for _, tt := range tests {
		if got := r.Intensity(tt.impact); got != tt.expected {
			t.Errorf("impact %f: expected %f, got %f", tt.impact, tt.expected, got)
		}
	}
}

func TestDebounce(t *testing.T) {
	r, voices, rec, clock := setup()
	voices.Assign(7, 0, pitch.At(4))

	r.OnCollision(hit(7, 5))
	clock.advance(40 * time.Millisecond)
	r.OnCollision(hit(7, 5))

	if len(rec.Notes()) != 1 {
		t.Fatalf("expected repeat within tolerance dropped, got %d notes", len(rec.Notes()))
	}

	clock.advance(40 * time.Millisecond)
	r.OnCollision(hit(7, 5))

	if len(rec.Notes()) != 2 {
		t.Errorf("expected repeat after tolerance played, got %d notes", len(rec.Notes()))
	}
	st := r.Stats()
	if st.Routed != 2 || st.Suppressed != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestIgnoresBallBallAndGrazing(t *testing.T) {
	r, _, rec, _ := setup()

	r.OnCollision(physics.CollisionEvent{A: 1, B: 2, KindA: dynamo.KindBall, KindB: dynamo.KindBall, ImpactVelocity: 5})
	r.OnCollision(hit(7, 0.01))

	if len(rec.Notes()) != 0 {
		t.Errorf("expected no notes, got %d", len(rec.Notes()))
	}
	if r.Stats().Ignored != 2 {
		t.Errorf("expected 2 ignored, got %d", r.Stats().Ignored)
	}
}

func TestBackendFailureDoesNotPropagate(t *testing.T) {
	voices := voice.NewRouter(voice.DefaultConfig())
	r := New(voices, synth.Failing{}, DefaultConfig())

	r.OnCollision(hit(7, 5))

	if r.Stats().Routed != 1 {
		t.Errorf("expected request routed even though the backend failed")
	}
}

func TestNotReadyDropsSilently(t *testing.T) {
	voices := voice.NewRouter(voice.DefaultConfig())
	rec := synth.NewRecorder()
	guard := synth.NewGuard(rec, synth.NewGate(), nil)
	r := New(voices, guard, DefaultConfig())

	r.OnCollision(hit(7, 5))

	if len(rec.Notes()) != 0 {
		t.Error("expected request dropped before the backend is ready")
	}
	if guard.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", guard.Stats().Dropped)
	}
}

func TestNotReadyLeavesDebounceAlone(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	voices := voice.NewRouter(voice.DefaultConfig())
	voices.Assign(7, 0, pitch.At(4))
	rec := synth.NewRecorder()
	gate := synth.NewGate()
	r := New(voices, synth.NewGuard(rec, gate, nil), DefaultConfig(), WithClock(clock.now))

	r.OnCollision(hit(7, 5))
	gate.Open()
	r.OnCollision(hit(7, 5))

	if len(rec.Notes()) != 1 {
		t.Fatalf("expected the first hit after opening to play, got %d notes", len(rec.Notes()))
	}
	if st := r.Stats(); st.Suppressed != 0 || st.Routed != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestEventTimeDebounce(t *testing.T) {
	voices := voice.NewRouter(voice.DefaultConfig())
	voices.SetTempo(120)
	voices.Assign(7, 0, pitch.At(4))
	rec := synth.NewRecorder()
	r := New(voices, rec, DefaultConfig(), WithEventTime(time.Unix(0, 0)))

	for _, at := range []float64{0.4167, 0.5, 0.52} {
		ev := hit(7, 5)
		ev.Time = at
		r.OnCollision(ev)
	}

	if len(rec.Notes()) != 2 {
		t.Fatalf("expected hits 83ms apart to play and a 20ms repeat dropped, got %d notes", len(rec.Notes()))
	}
	if r.Stats().Suppressed != 1 {
		t.Errorf("expected 1 suppressed, got %d", r.Stats().Suppressed)
	}
}

func TestWorldToRouter(t *testing.T) {
	w := physics.NewWorld(physics.DefaultConfig(), nil)
	voices := voice.NewRouter(voice.DefaultConfig())
	rec := synth.NewRecorder()
	var triggers []Trigger
	r := New(voices, rec, DefaultConfig(), OnTrigger(func(tr Trigger) { triggers = append(triggers, tr) }))
	w.Collisions().Subscribe(r.OnCollision)

	wall, _ := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
	m, _ := w.Meta(wall)
	voices.Assign(wall, 1, m.Wall.Note)
	w.CreateBall(mgl64.Vec3{0, 1.5, 0}, physics.BallOptions{})

	for i := 0; i < 60; i++ {
		w.Step(1.0 / 60.0)
	}

	if len(rec.Notes()) == 0 {
		t.Fatal("expected the falling ball to sound the beam")
	}
	if rec.Notes()[0].Note.Index != 9 {
		t.Errorf("expected note 9, got %d", rec.Notes()[0].Note.Index)
	}
	if len(triggers) == 0 || triggers[0].Geometry != wall || !triggers[0].Bound {
		t.Errorf("unexpected triggers %+v", triggers)
	}
}
