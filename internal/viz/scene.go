package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
)

const (
	boundaryColor  = "#555577"
	ballColor      = "#ffffff"
	dispenserColor = "#00ffff"
	selectedColor  = "#ff00ff"
	previewColor   = "#888899"
)

// SceneView is what a terminal frame of the scene shows.
type SceneView struct {
	Snapshot dynamo.Snapshot
	Selected dynamo.BodyID
	// Preview is a beam being drawn, when Drawing is set.
	Drawing      bool
	PreviewStart mgl64.Vec3
	PreviewEnd   mgl64.Vec3
}

// DrawScene renders beams in their note colors, balls as dots and
// dispensers as markers.
func DrawScene(c *Canvas, p Projection, v SceneView) {
	c.Clear()
	var dispensers []dynamo.BodySnapshot
	for _, b := range v.Snapshot.Bodies {
		switch b.Kind {
		case dynamo.KindBoundary:
			drawSegment(c, p, b.Start, b.End, boundaryColor)
		case dynamo.KindWall:
			color := b.Color
			if b.ID == v.Selected {
				color = selectedColor
			}
			drawSegment(c, p, b.Start, b.End, color)
		case dynamo.KindBall:
			drawBall(c, p, b)
		case dynamo.KindDispenser:
			dispensers = append(dispensers, b)
		}
	}
	for _, d := range dispensers {
		x, y := p.Point(d.Position)
		color := dispenserColor
		if d.ID == v.Selected {
			color = selectedColor
		}
		c.Glyph(x, y, '▼', color)
	}
	if v.Drawing {
		drawSegment(c, p, v.PreviewStart, v.PreviewEnd, previewColor)
	}
}

func drawSegment(c *Canvas, p Projection, a, b mgl64.Vec3, color string) {
	x0, y0 := p.Point(a)
	x1, y1 := p.Point(b)
	c.DrawLine(x0, y0, x1, y1, color)
}

func drawBall(c *Canvas, p Projection, b dynamo.BodySnapshot) {
	cx, cy := p.Point(b.Position)
	r := int(math.Round(b.Radius * p.scale))
	if r <= 1 {
		c.Set(cx, cy, ballColor)
		return
	}
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				c.Set(cx+dx, cy+dy, ballColor)
			}
		}
	}
}

// DefaultView frames an empty scene.
var DefaultView = dynamo.Rect{MinX: -8, MinY: -7, MaxX: 8, MaxY: 5}

// FitView returns a rect around every body in the snapshot, padded by
// margin, or fallback when the snapshot is empty.
func FitView(s dynamo.Snapshot, margin float64, fallback dynamo.Rect) dynamo.Rect {
	r := dynamo.Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	grow := func(v mgl64.Vec3) {
		r.MinX = math.Min(r.MinX, v.X())
		r.MinY = math.Min(r.MinY, v.Y())
		r.MaxX = math.Max(r.MaxX, v.X())
		r.MaxY = math.Max(r.MaxY, v.Y())
	}
	for _, b := range s.Bodies {
		if b.Kind == dynamo.KindBall {
			continue
		}
		if b.Kind == dynamo.KindDispenser {
			grow(b.Position)
			continue
		}
		grow(b.Start)
		grow(b.End)
	}
	if math.IsInf(r.MinX, 0) || r.MaxX-r.MinX <= 0 && r.MaxY-r.MinY <= 0 {
		return fallback
	}
	r.MinX -= margin
	r.MinY -= margin
	r.MaxX += margin
	r.MaxY += margin
	return r
}
