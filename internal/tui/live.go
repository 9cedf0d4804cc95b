package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/viz"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws frames of a headless run to a terminal. It is a
// dynamo.Observer and throttles itself to frameRate.
type LiveRenderer struct {
	out       io.Writer
	frameRate int
	lastFrame time.Time
	now       func() time.Time

	canvas *viz.Canvas
	proj   viz.Projection
	fitted bool
	view   dynamo.Rect
}

func NewLiveRenderer(out io.Writer, width, height, frameRate int) *LiveRenderer {
	r := &LiveRenderer{
		out:       out,
		frameRate: max(frameRate, 1),
		now:       time.Now,
		canvas:    viz.NewCanvas(width, height),
	}
	return r
}

// SetView fixes the visible region instead of fitting the first frame.
func (r *LiveRenderer) SetView(view dynamo.Rect) {
	r.view = view
	r.proj = viz.NewProjection(view, r.canvas)
	r.fitted = true
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }

func (r *LiveRenderer) OnFrame(s dynamo.Snapshot) {
	now := r.now()
	if !r.lastFrame.IsZero() && now.Sub(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = now

	if !r.fitted {
		r.SetView(viz.FitView(s, 1, viz.DefaultView))
	}
	viz.DrawScene(r.canvas, r.proj, viz.SceneView{Snapshot: s})

	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(r.canvas.String())
	fmt.Fprintf(&b, "\n%s %s  %s %s  %s %s\n",
		viz.MetricLabel.Render("t"), viz.MetricValue.Render(fmt.Sprintf("%6.2fs", s.Time)),
		viz.MetricLabel.Render("frame"), viz.MetricValue.Render(fmt.Sprint(s.Frame)),
		viz.MetricLabel.Render("balls"), viz.MetricValue.Render(fmt.Sprint(s.Count(dynamo.KindBall))),
	)
	io.WriteString(r.out, b.String())
}
