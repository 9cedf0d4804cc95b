// Package physics owns the rigid-body simulation of a bounce scene.
//
// A [World] wraps a box2d world and keeps a side table of [Meta] records
// keyed by [dynamo.BodyID], so body kind dispatch is a switch over
// [dynamo.Kind] rather than probing solver user data:
//
//   - balls: dynamic circles, damped every step, culled when they leave play
//   - walls: static beams whose length picks a note via package pitch
//   - boundaries: static frame pieces; ground boundaries expire balls
//   - dispensers: emitters with no solver body
//
// # Stepping
//
// [World.Step] runs a fixed-step accumulator over capped frame deltas. Each
// fixed step is split into sub-steps while any ball is fast, which keeps
// thin beams from being tunneled through. Collision events are buffered while
// the solver runs and published once the step completes; mutations requested
// during a step are deferred the same way.
//
//	w := physics.NewWorld(physics.DefaultConfig(), logger)
//	w.Collisions().Subscribe(router.OnCollision)
//	wall, _ := w.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
//	w.CreateBall(mgl64.Vec3{0, 2, 0}, physics.BallOptions{})
//	w.Step(frameDelta)
//
// # Thread Safety
//
// A World is driven from one goroutine. [World.RequestBall] is the only
// method safe to call from elsewhere; requests are applied at the start of
// the next step.
package physics
