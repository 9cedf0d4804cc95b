package physics

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
)

type recorder struct {
	collisions []CollisionEvent
	geometry   []GeometryEvent
	removals   []Removal
}

func record(w *World) *recorder {
	r := &recorder{}
	w.Collisions().Subscribe(func(ev CollisionEvent) { r.collisions = append(r.collisions, ev) })
	w.Geometry().Subscribe(func(ev GeometryEvent) { r.geometry = append(r.geometry, ev) })
	w.Removals().Subscribe(func(ev Removal) { r.removals = append(r.removals, ev) })
	return r
}

func TestCreateWallScenario(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	id, err := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
	if err != nil {
		t.Fatalf("create wall: %v", err)
	}

	m, ok := w.Meta(id)
	if !ok || m.Kind != dynamo.KindWall {
		t.Fatalf("expected wall metadata, got %+v", m)
	}
	if math.Abs(m.Wall.Length-2.0) > 1e-12 {
		t.Errorf("expected length 2, got %f", m.Wall.Length)
	}
	if m.Wall.Note.Index != 9 {
		t.Errorf("expected note index 9, got %d", m.Wall.Note.Index)
	}
	if m.Wall.Color == "" {
		t.Error("expected a color")
	}

	if len(rec.geometry) != 1 || rec.geometry[0].Change != Created || rec.geometry[0].Note.Index != 9 {
		t.Errorf("expected one created event with note 9, got %+v", rec.geometry)
	}
}

func TestCreateWallRejectsDegenerate(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)

	tests := []struct {
		name       string
		start, end mgl64.Vec3
	}{
		{"zero length", mgl64.Vec3{1, 1, 0}, mgl64.Vec3{1, 1, 0}},
		{"too short", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.01, 0, 0}},
		{"nan", mgl64.Vec3{math.NaN(), 0, 0}, mgl64.Vec3{1, 0, 0}},
		{"inf", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{math.Inf(1), 0, 0}},
	}

	for _, tt := range tests {
		id, err := w.CreateWall(tt.start, tt.end)
		if !errors.Is(err, dynamo.ErrDegenerateGeometry) {
			t.Errorf("%s: expected degenerate geometry error, got %v", tt.name, err)
		}
		if id != 0 {
			t.Errorf("%s: expected zero id, got %d", tt.name, id)
		}
	}
	if w.Len(dynamo.KindWall) != 0 {
		t.Errorf("expected no walls, got %d", w.Len(dynamo.KindWall))
	}
}

func TestStepAccumulator(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		steps int
	}{
		{"three steps", 0.05, 3},
		{"capped", 1.0, 6},
		{"negative", -1, 0},
		{"nan", math.NaN(), 0},
		{"partial", 0.01, 0},
	}

	for _, tt := range tests {
		w := NewWorld(DefaultConfig(), nil)
		if got := w.Step(tt.delta); got != tt.steps {
			t.Errorf("%s: expected %d steps, got %d", tt.name, tt.steps, got)
		}
	}

	w := NewWorld(DefaultConfig(), nil)
	w.Step(0.01)
	if got := w.Step(0.01); got != 1 {
		t.Errorf("expected leftover time to carry over, got %d steps", got)
	}
}

func TestNoBallBallContacts(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	if _, err := w.CreateWall(mgl64.Vec3{-2, 0, 0}, mgl64.Vec3{2, 0, 0}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if _, err := w.CreateBall(mgl64.Vec3{0.05 * float64(i), 1 + 0.05*float64(i), 0}, BallOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 180; i++ {
		w.Step(1.0 / 60.0)
	}

	if len(rec.collisions) == 0 {
		t.Fatal("expected ball-wall contacts")
	}
	for _, ev := range rec.collisions {
		if ev.KindA == dynamo.KindBall && ev.KindB == dynamo.KindBall {
			t.Fatalf("ball-ball contact between %d and %d", ev.A, ev.B)
		}
	}
}

func TestBallPassesThroughRestingBall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	w := NewWorld(cfg, nil)
	rec := record(w)

	moving, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{Velocity: mgl64.Vec3{2, 0, 0}})
	resting, _ := w.CreateBall(mgl64.Vec3{0.5, 0, 0}, BallOptions{})
	for i := 0; i < 60; i++ {
		w.Tick()
	}

	if len(rec.collisions) != 0 {
		t.Fatalf("expected no contacts, got %d", len(rec.collisions))
	}
	bodies := map[dynamo.BodyID]dynamo.BodySnapshot{}
	for _, b := range w.Snapshot().Bodies {
		bodies[b.ID] = b
	}
	if v := bodies[resting].Velocity.Len(); v > 1e-9 {
		t.Errorf("resting ball was pushed to %f m/s", v)
	}
	if math.Abs(bodies[resting].Position.X()-0.5) > 1e-9 {
		t.Errorf("resting ball moved to x=%f", bodies[resting].Position.X())
	}
	if x := bodies[moving].Position.X(); x < 1 {
		t.Errorf("moving ball stopped at x=%f", x)
	}
}

func tunnelingWorld(subSteps int) (*World, *recorder) {
	cfg := DefaultConfig()
	cfg.SubSteps = subSteps
	cfg.ContinuousCollision = false
	w := NewWorld(cfg, nil)
	rec := record(w)
	w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
	// 36 m/s covers 0.6 units per undivided step: from y=0.3 the ball's
	// next position is clear of the 0.2-thick beam on the far side.
	w.CreateBall(mgl64.Vec3{0, 0.3, 0}, BallOptions{Radius: 0.1, Velocity: mgl64.Vec3{0, -36, 0}})
	return w, rec
}

func TestAntiTunneling(t *testing.T) {
	w, rec := tunnelingWorld(4)
	for i := 0; i < 3; i++ {
		w.Tick()
	}

	if len(rec.collisions) == 0 {
		t.Fatal("expected the beam to stop the ball with sub-stepping")
	}
	if rec.collisions[0].ImpactVelocity < 30 {
		t.Errorf("expected impact near 36 m/s, got %f", rec.collisions[0].ImpactVelocity)
	}
}

func TestTunnelingWithoutSubSteps(t *testing.T) {
	w, rec := tunnelingWorld(1)
	for i := 0; i < 3; i++ {
		w.Tick()
	}

	if len(rec.collisions) != 0 {
		t.Fatalf("expected the ball to pass through without sub-stepping, got %d contacts", len(rec.collisions))
	}
}

func TestEnergyNonGain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contact.Restitution = 0.97
	cfg.BallDamping = 0.999
	w := NewWorld(cfg, nil)

	w.CreateWall(mgl64.Vec3{-3, 0, 0}, mgl64.Vec3{3, 0, 0})
	id, _ := w.CreateBall(mgl64.Vec3{0, 2, 0}, BallOptions{Radius: 0.1})

	var heights []float64
	for i := 0; i < 360; i++ {
		w.Tick()
		b, ok := w.Snapshot().Find(id)
		if !ok {
			t.Fatalf("ball removed at step %d", i)
		}
		heights = append(heights, b.Position.Y())
	}

	// resting contact sits at 0.2; only count real bounces
	var peaks []float64
	for i := 1; i < len(heights)-1; i++ {
		if heights[i] > heights[i-1] && heights[i] >= heights[i+1] && heights[i] > 0.3 {
			peaks = append(peaks, heights[i])
		}
	}

	if len(peaks) < 3 {
		t.Fatalf("expected at least 3 bounces, got %d", len(peaks))
	}
	if peaks[0] >= 2.0 {
		t.Errorf("first bounce reached %f, above the drop height", peaks[0])
	}
	for i := 1; i < len(peaks); i++ {
		if peaks[i] > peaks[i-1]+1e-3 {
			t.Errorf("peak %d rose: %f > %f", i, peaks[i], peaks[i-1])
		}
	}
}

func TestUpdateWallEndpointReplacesShapeInPlace(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	id, _ := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
	body := w.bodies[id].body

	if err := w.UpdateWallEndpoint(id, EndPoint, mgl64.Vec3{-0.5, 0, 0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if w.bodies[id].body != body {
		t.Error("expected the same solver body after reshaping")
	}
	m, _ := w.Meta(id)
	if math.Abs(m.Wall.Length-0.5) > 1e-9 {
		t.Errorf("expected length 0.5, got %f", m.Wall.Length)
	}
	want := DefaultConfig().Pitch.Map(0.5)
	if m.Wall.Note != want {
		t.Errorf("expected note %s, got %s", want.Name, m.Wall.Note.Name)
	}

	last := rec.geometry[len(rec.geometry)-1]
	if last.Change != Resized || last.ID != id || last.Note != want {
		t.Errorf("expected resized event, got %+v", last)
	}

	err := w.UpdateWallEndpoint(id, EndPoint, mgl64.Vec3{-1, 0, 0})
	if !errors.Is(err, dynamo.ErrDegenerateGeometry) {
		t.Errorf("expected degenerate error, got %v", err)
	}
	m2, _ := w.Meta(id)
	if m2.Wall.Length != m.Wall.Length {
		t.Error("rejected update must leave the wall unchanged")
	}
}

func TestUpdateWallEndpointErrors(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	if err := w.UpdateWallEndpoint(42, StartPoint, mgl64.Vec3{}); !errors.Is(err, dynamo.ErrUnknownBody) {
		t.Errorf("expected unknown body, got %v", err)
	}
	ball, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{})
	if err := w.UpdateWallEndpoint(ball, StartPoint, mgl64.Vec3{}); !errors.Is(err, dynamo.ErrWrongKind) {
		t.Errorf("expected wrong kind, got %v", err)
	}
}

func TestFloorCulling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FloorY = -0.5
	w := NewWorld(cfg, nil)
	rec := record(w)

	id, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{})
	for i := 0; i < 60 && w.Len(dynamo.KindBall) > 0; i++ {
		w.Tick()
	}

	if w.Len(dynamo.KindBall) != 0 {
		t.Fatal("expected ball culled below the floor")
	}
	if len(rec.removals) != 1 || rec.removals[0].ID != id || rec.removals[0].Reason != ReasonFloor {
		t.Errorf("unexpected removals %+v", rec.removals)
	}
}

func TestGroundGrace(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	w.CreateBoundary(BoundaryOptions{Start: mgl64.Vec3{-5, 0, 0}, End: mgl64.Vec3{5, 0, 0}, Ground: true})
	w.CreateBall(mgl64.Vec3{0, 0.5, 0}, BallOptions{})

	for i := 0; i < 120; i++ {
		w.Tick()
	}

	if len(rec.collisions) == 0 {
		t.Fatal("expected ground contact")
	}
	if len(rec.removals) != 1 || rec.removals[0].Reason != ReasonGround {
		t.Fatalf("expected ground removal, got %+v", rec.removals)
	}
	held := rec.removals[0].Time - rec.collisions[0].Time
	if held < 0.5-1e-9 || held > 0.5+2.0/60 {
		t.Errorf("expected removal about 0.5s after contact, got %f", held)
	}
}

func TestLifetimeCulling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	w := NewWorld(cfg, nil)
	rec := record(w)

	w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{Lifetime: 0.25})
	for i := 0; i < 30; i++ {
		w.Tick()
	}
	if len(rec.removals) != 1 || rec.removals[0].Reason != ReasonLifetime {
		t.Errorf("expected lifetime removal, got %+v", rec.removals)
	}
}

func TestViewportCulling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	w := NewWorld(cfg, nil)
	rec := record(w)
	w.SetViewport(&dynamo.Rect{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1})

	w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{Velocity: mgl64.Vec3{20, 0, 0}})
	stay, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{})

	if got := w.QueryOutOfBounds(); len(got) != 0 {
		t.Fatalf("expected nothing out of bounds yet, got %v", got)
	}
	for i := 0; i < 30; i++ {
		w.Tick()
	}

	if len(rec.removals) != 1 || rec.removals[0].Reason != ReasonViewport {
		t.Fatalf("expected viewport removal, got %+v", rec.removals)
	}
	if _, ok := w.Meta(stay); !ok {
		t.Error("ball inside the viewport was removed")
	}
}

func TestInvalidBallRemoved(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	bad, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{})
	good, _ := w.CreateBall(mgl64.Vec3{1, 0, 0}, BallOptions{})
	w.bodies[bad].body.SetLinearVelocity(box2d.MakeB2Vec2(math.NaN(), 0))

	w.maintainBalls()

	if _, ok := w.Meta(bad); ok {
		t.Error("expected NaN ball removed")
	}
	if _, ok := w.Meta(good); !ok {
		t.Error("healthy ball must survive")
	}
	if len(rec.removals) != 1 || rec.removals[0].Reason != ReasonInvalid {
		t.Errorf("expected invalid removal, got %+v", rec.removals)
	}
}

func TestSettlingRampsAndResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	w := NewWorld(cfg, nil)

	id, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{})
	for i := 0; i < 3; i++ {
		w.maintainBalls()
	}
	d := w.bodies[id].meta.Ball.Damping
	if d <= cfg.LinearDamping {
		t.Fatalf("expected damping above baseline at rest, got %f", d)
	}

	for i := 0; i < 50; i++ {
		w.maintainBalls()
	}
	if got := w.bodies[id].meta.Ball.Damping; got > cfg.SettleMaxDamping {
		t.Errorf("damping %f exceeds cap %f", got, cfg.SettleMaxDamping)
	}

	w.bodies[id].body.SetLinearVelocity(box2d.MakeB2Vec2(3, 0))
	w.maintainBalls()
	if got := w.bodies[id].meta.Ball.Damping; got != cfg.LinearDamping {
		t.Errorf("expected damping reset to %f, got %f", cfg.LinearDamping, got)
	}
}

func TestBallDampingPerStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	w := NewWorld(cfg, nil)

	id, _ := w.CreateBall(mgl64.Vec3{0, 0, 0}, BallOptions{Velocity: mgl64.Vec3{4, 0, 0}})
	w.maintainBalls()

	v := w.bodies[id].body.GetLinearVelocity()
	if math.Abs(v.X-4*0.999) > 1e-12 {
		t.Errorf("expected %f, got %f", 4*0.999, v.X)
	}
}

func TestRequestBallFromGoroutines(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.RequestBall(mgl64.Vec3{float64(i), 5, 0}, BallOptions{})
		}(i)
	}
	wg.Wait()

	if w.Len(dynamo.KindBall) != 0 {
		t.Fatal("requests must not apply before the next step")
	}
	w.Step(1.0 / 60.0)
	if w.Len(dynamo.KindBall) != 10 {
		t.Errorf("expected 10 balls, got %d", w.Len(dynamo.KindBall))
	}
}

func TestMutationsDeferredWhileStepping(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	wall, _ := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})

	w.stepping = true
	id, err := w.CreateWall(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{1, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveBody(wall); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Meta(id); ok {
		t.Error("creation must wait for the step to finish")
	}
	if _, ok := w.Meta(wall); !ok {
		t.Error("removal must wait for the step to finish")
	}

	w.stepping = false
	w.runDeferred()

	if _, ok := w.Meta(id); !ok {
		t.Error("expected deferred creation applied")
	}
	if _, ok := w.Meta(wall); ok {
		t.Error("expected deferred removal applied")
	}
}

func TestPickAndEndpoints(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	wall, _ := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
	disp, _ := w.CreateDispenser(mgl64.Vec3{0, 3, 0})

	if id, ok := w.Pick(mgl64.Vec3{0.3, 0.15, 0}, 0.2); !ok || id != wall {
		t.Errorf("expected wall picked, got %d %v", id, ok)
	}
	if id, ok := w.Pick(mgl64.Vec3{0.05, 3.05, 0}, 0.3); !ok || id != disp {
		t.Errorf("expected dispenser picked, got %d %v", id, ok)
	}
	if _, ok := w.Pick(mgl64.Vec3{5, 5, 0}, 0.2); ok {
		t.Error("expected nothing picked in empty space")
	}

	if end, ok := w.EndpointNear(wall, mgl64.Vec3{0.95, 0.02, 0}, 0.15); !ok || end != EndPoint {
		t.Errorf("expected end point, got %v %v", end, ok)
	}
	if end, ok := w.EndpointNear(wall, mgl64.Vec3{-1.05, 0, 0}, 0.15); !ok || end != StartPoint {
		t.Errorf("expected start point, got %v %v", end, ok)
	}
	if _, ok := w.EndpointNear(wall, mgl64.Vec3{0, 0, 0}, 0.15); ok {
		t.Error("middle of the beam is not a handle")
	}
}

func TestSnapshotAndClear(t *testing.T) {
	w := NewWorld(DefaultConfig(), nil)
	rec := record(w)

	w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 1, 0})
	w.CreateDispenser(mgl64.Vec3{0, 3, 0})
	w.CreateBall(mgl64.Vec3{0, 2, 0}, BallOptions{})

	snap := w.Snapshot()
	if len(snap.Bodies) != 3 {
		t.Fatalf("expected 3 bodies, got %d", len(snap.Bodies))
	}
	wall := snap.Bodies[0]
	if wall.Kind != dynamo.KindWall || wall.Note == "" || wall.Position.Z() != 0 {
		t.Errorf("unexpected wall snapshot %+v", wall)
	}
	if wall.Orientation.Len() < 0.999 || wall.Orientation.Len() > 1.001 {
		t.Errorf("expected unit quaternion, got %v", wall.Orientation)
	}

	w.Clear()
	if len(w.Snapshot().Bodies) != 0 {
		t.Error("expected empty world after clear")
	}
	if len(rec.removals) != 3 {
		t.Errorf("expected 3 removals, got %d", len(rec.removals))
	}
}
