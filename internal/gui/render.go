package gui

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/sequencer"
)

func vec(v mgl64.Vec3) rl.Vector3 {
	return rl.NewVector3(float32(v.X()), float32(v.Y()), float32(v.Z()))
}

func (a *App) drawScene() {
	snap := a.engine.Snapshot()
	selected, _ := a.engine.Selection().Selection()

	rl.BeginMode3D(a.Camera)
	a.drawGrid()
	for _, b := range snap.Bodies {
		switch b.Kind {
		case dynamo.KindBoundary:
			drawBeam(b, ColTextDim)
		case dynamo.KindWall:
			col := rgba(b.Color, 255, ColAccent)
			if b.ID == selected {
				col = ColMagenta
				rl.DrawSphere(vec(b.Start), float32(a.engine.Config().Selection.HandleRadius), ColSelect)
				rl.DrawSphere(vec(b.End), float32(a.engine.Config().Selection.HandleRadius), ColSelect)
			}
			drawBeam(b, col)
		case dynamo.KindBall:
			drawBall(b)
		case dynamo.KindDispenser:
			col := ColCyan
			if b.ID == selected {
				col = ColMagenta
			}
			rl.DrawCube(vec(b.Position), 0.4, 0.4, 0.4, col)
			rl.DrawCubeWires(vec(b.Position), 0.5, 0.5, 0.5, ColSelect)
		}
	}
	if start, end, ok := a.engine.Selection().Preview(); ok {
		rl.DrawLine3D(vec(start), vec(end), ColSelect)
	}
	rl.DrawCircle3D(vec(a.hover), 0.1, rl.NewVector3(0, 0, 1), 0, ColText)
	rl.EndMode3D()
}

func (a *App) drawGrid() {
	for x := math.Floor(a.view.MinX); x <= a.view.MaxX; x++ {
		rl.DrawLine3D(rl.NewVector3(float32(x), float32(a.view.MinY), -0.01), rl.NewVector3(float32(x), float32(a.view.MaxY), -0.01), ColGrid)
	}
	for y := math.Floor(a.view.MinY); y <= a.view.MaxY; y++ {
		rl.DrawLine3D(rl.NewVector3(float32(a.view.MinX), float32(y), -0.01), rl.NewVector3(float32(a.view.MaxX), float32(y), -0.01), ColGrid)
	}
}

func drawBeam(b dynamo.BodySnapshot, col rl.Color) {
	r := float32(math.Max(b.Thickness/2, 0.03))
	rl.DrawCylinderEx(vec(b.Start), vec(b.End), r, r, 8, col)
}

// drawBall draws the ball and a spoke showing its spin.
func drawBall(b dynamo.BodySnapshot) {
	pos := vec(b.Position)
	rl.DrawSphere(pos, float32(b.Radius), ColSelect)
	spoke := b.Orientation.Rotate(mgl64.Vec3{b.Radius, 0, 0})
	rl.DrawLine3D(pos, vec(b.Position.Add(spoke).Add(mgl64.Vec3{0, 0, b.Radius})), ColBg)
}

func (a *App) drawPatterns() {
	seq := a.engine.Sequencer()
	selected, _ := a.engine.Selection().Selection()
	cursor := -1
	if seq.Running() {
		cursor = seq.Cursor()
	}

	const cell, gap = 14, 3
	x0, y := int32(30), int32(80)
	for i, id := range seq.Dispensers() {
		p, _ := seq.Pattern(id)
		label := ColText
		if id == selected {
			label = ColMagenta
		}
		a.drawText(string(rune('1'+i%9)), int(x0), int(y), 14, label)
		for step := 0; step < sequencer.Steps; step++ {
			x := x0 + 20 + int32(step)*(cell+gap) + int32(step/4)*gap*2
			col := ColGrid
			if p[step] {
				col = ColAccent
			}
			if step == cursor {
				rl.DrawRectangle(x-1, y-1, cell+2, cell+2, ColCyan)
			}
			rl.DrawRectangle(x, y, cell, cell, col)
		}
		y += cell + gap*2
	}
}

func (a *App) drawActivity() {
	if len(a.activity) < 2 {
		return
	}
	const x0, y0, w, h = 30, 560, 400, 50
	peak := 1.0
	for _, v := range a.activity {
		peak = math.Max(peak, v)
	}
	points := make([]rl.Vector2, len(a.activity))
	for i, v := range a.activity {
		px := float32(x0) + float32(i)/float32(len(a.activity))*w
		py := float32(y0+h) - float32(v/peak)*h
		points[i] = rl.NewVector2(px, py)
	}
	rl.DrawLineStrip(points, ColAccent)
	a.drawText("notes", x0+w+10, y0+h-10, 14, ColText)
}
