// Package export writes scenes and note timelines as standalone SVG.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/sim"
)

const (
	background    = "#0a0a0a"
	boundaryColor = "#5c5c5c"
	ballColor     = "#f0f0f0"
	unboundColor  = "#9a9a9a"
)

type frame struct {
	view          dynamo.Rect
	width, height float64
	scale         float64
	offX, offY    float64
}

// fit maps view into a width x height image, keeping the aspect ratio.
func fit(view dynamo.Rect, width, height int) frame {
	f := frame{view: view, width: float64(width), height: float64(height)}
	w := view.MaxX - view.MinX
	h := view.MaxY - view.MinY
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	f.scale = math.Min(f.width/w, f.height/h)
	f.offX = (f.width - w*f.scale) / 2
	f.offY = (f.height - h*f.scale) / 2
	return f
}

func (f frame) x(v float64) float64 { return f.offX + (v-f.view.MinX)*f.scale }
func (f frame) y(v float64) float64 { return f.height - f.offY - (v-f.view.MinY)*f.scale }

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

// SceneSVG draws one snapshot: boundaries in gray, beams in their note
// colors with the note name at the midpoint, balls and dispensers.
func SceneSVG(snap dynamo.Snapshot, view dynamo.Rect, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	f := fit(view, width, height)

	var sb strings.Builder
	header(&sb, width, height)

	line := func(b dynamo.BodySnapshot, color string) {
		stroke := math.Max(b.Thickness*f.scale, 1)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" stroke-linecap="round"/>
`, f.x(b.Start.X()), f.y(b.Start.Y()), f.x(b.End.X()), f.y(b.End.Y()), color, stroke)
	}

	sb.WriteString("<g id=\"boundaries\">\n")
	for _, b := range snap.Bodies {
		if b.Kind == dynamo.KindBoundary {
			line(b, boundaryColor)
		}
	}
	sb.WriteString("</g>\n<g id=\"walls\" font-family=\"monospace\" font-size=\"10\">\n")
	for _, b := range snap.Bodies {
		if b.Kind != dynamo.KindWall {
			continue
		}
		color := b.Color
		if color == "" {
			color = unboundColor
		}
		line(b, color)
		if b.Note != "" {
			mid := b.Start.Add(b.End).Mul(0.5)
			fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" fill="%s">%s</text>
`, f.x(mid.X())+4, f.y(mid.Y())-4, color, b.Note)
		}
	}
	sb.WriteString("</g>\n<g id=\"dispensers\">\n")
	for _, b := range snap.Bodies {
		if b.Kind != dynamo.KindDispenser {
			continue
		}
		cx, cy := f.x(b.Position.X()), f.y(b.Position.Y())
		r := math.Max(0.15*f.scale, 3)
		fmt.Fprintf(&sb, `<polygon points="%.1f,%.1f %.1f,%.1f %.1f,%.1f" fill="none" stroke="%s"/>
`, cx-r, cy-r, cx+r, cy-r, cx, cy+r, ballColor)
	}
	sb.WriteString("</g>\n<g id=\"balls\" fill=\"" + ballColor + "\">\n")
	for _, b := range snap.Bodies {
		if b.Kind != dynamo.KindBall {
			continue
		}
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>
`, f.x(b.Position.X()), f.y(b.Position.Y()), math.Max(b.Radius*f.scale, 1))
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

func noteColor(midi int) string {
	if n, ok := pitch.ByMidi(midi); ok {
		return pitch.NoteToHex(n)
	}
	return unboundColor
}

// NoteRollSVG plots triggers as a piano roll: time across, pitch up.
// Hits with no bound beam sit on the bottom row.
func NoteRollSVG(triggers []sim.TriggerRecord, duration float64, width, height int) string {
	if len(triggers) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	if duration <= 0 {
		for _, t := range triggers {
			duration = math.Max(duration, t.Time)
		}
		duration = math.Max(duration, 1)
	}
	lo, hi := pitch.Lowest().Midi, pitch.Scale[len(pitch.Scale)-1].Midi
	rows := float64(hi - lo + 2)
	rowH := float64(height) / rows

	var sb strings.Builder
	header(&sb, width, height)
	sb.WriteString("<g>\n")
	for _, t := range triggers {
		if t.Time < 0 || t.Time > duration {
			continue
		}
		x := t.Time / duration * float64(width)
		row := 0.0
		color := unboundColor
		if t.Bound {
			row = float64(t.Midi-lo) + 1
			color = noteColor(t.Midi)
		}
		y := float64(height) - (row+0.5)*rowH
		r := math.Max(rowH/2*(0.4+0.6*math.Min(t.Intensity, 1)), 1)
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"><title>%s %.3fs</title></circle>
`, x, y, r, color, t.Note, t.Time)
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}
