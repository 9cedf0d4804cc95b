package gui

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/san-kum/bounce/internal/dynamo"
)

// planeHit intersects a ray with the z = 0 plane. Rays parallel to the
// plane or pointing away from it miss.
func planeHit(origin, dir mgl64.Vec3) (mgl64.Vec3, bool) {
	if math.Abs(dir.Z()) < 1e-9 {
		return mgl64.Vec3{}, false
	}
	t := -origin.Z() / dir.Z()
	if t <= 0 {
		return mgl64.Vec3{}, false
	}
	return dynamo.Flat(origin.Add(dir.Mul(t))), true
}

// framing returns a camera position and target that show view whole for a
// perspective camera with the given vertical field of view in degrees.
func framing(view dynamo.Rect, fovy, aspect float64) (pos, target mgl64.Vec3) {
	cx := (view.MinX + view.MaxX) / 2
	cy := (view.MinY + view.MaxY) / 2
	h := view.MaxY - view.MinY
	if aspect > 0 {
		h = math.Max(h, (view.MaxX-view.MinX)/aspect)
	}
	half := mgl64.DegToRad(fovy) / 2
	dist := (h / 2) / math.Tan(half) * 1.1
	return mgl64.Vec3{cx, cy, math.Max(dist, 1)}, mgl64.Vec3{cx, cy, 0}
}

// rgba parses a #rrggbb note color, falling back to fallback.
func rgba(hex string, alpha uint8, fallback color.RGBA) color.RGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fallback
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}
}
