// Package dynamo provides the core primitives shared by the bounce engine.
//
// The package defines identifiers and read-only views that cross package
// boundaries:
//
//   - [BodyID]: stable handle for a ball, beam, boundary or dispenser
//   - [Kind]: tag selecting which metadata variant a body carries
//   - [Snapshot]: per-frame view of every live body for renderers
//   - [Metric] and [Observer]: hooks called once per frame
//
// # Coordinates
//
// Bodies live on the z = 0 plane. Positions are reported as [mgl64.Vec3]
// with Z fixed at zero and orientations as quaternions about +Z, so a 3D
// renderer can consume them without conversion.
//
// # Thread Safety
//
// Snapshots are values and may be handed to other goroutines. Nothing else
// in this package holds state.
package dynamo
