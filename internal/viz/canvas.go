package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
)

const brailleBlank = 0x2800

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a braille pixel grid. Each cell can carry a color; the last
// color drawn into a cell wins.
type Canvas struct {
	Width, Height int
	grid          [][]rune
	colors        [][]string
	glyphs        [][]rune
}

func NewCanvas(w, h int) *Canvas {
	w, h = max(w, 1), max(h, 1)
	c := &Canvas{
		Width:  w,
		Height: h,
		grid:   make([][]rune, h),
		colors: make([][]string, h),
		glyphs: make([][]rune, h),
	}
	for i := range c.grid {
		c.grid[i] = make([]rune, w)
		c.colors[i] = make([]string, w)
		c.glyphs[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Dots is the canvas size in sub-pixels.
func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

func (c *Canvas) cell(x, y int) (row, col int, ok bool) {
	if x < 0 || y < 0 {
		return 0, 0, false
	}
	col, row = x/2, y/4
	return row, col, col < c.Width && row < c.Height
}

// Set lights the sub-pixel (x, y).
func (c *Canvas) Set(x, y int, color string) {
	row, col, ok := c.cell(x, y)
	if !ok {
		return
	}
	c.grid[row][col] |= pixelMap[y%4][x%2]
	if color != "" {
		c.colors[row][col] = color
	}
}

// Glyph replaces the braille cell containing (x, y) with r.
func (c *Canvas) Glyph(x, y int, r rune, color string) {
	row, col, ok := c.cell(x, y)
	if !ok {
		return
	}
	c.glyphs[row][col] = r
	c.colors[row][col] = color
}

func (c *Canvas) Clear() {
	for i := range c.grid {
		for j := range c.grid[i] {
			c.grid[i][j] = brailleBlank
			c.colors[i][j] = ""
			c.glyphs[i][j] = 0
		}
	}
}

// DrawLine draws with Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int, color string) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0, color)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// String renders the grid, coloring cells with lipgloss.
func (c *Canvas) String() string {
	var b strings.Builder
	for i, row := range c.grid {
		for j, r := range row {
			if g := c.glyphs[i][j]; g != 0 {
				r = g
			}
			if color := c.colors[i][j]; color != "" && r != brailleBlank {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(r)))
				continue
			}
			b.WriteRune(r)
		}
		if i < len(c.grid)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Projection maps world points inside View onto canvas sub-pixels, keeping
// the aspect ratio and flipping y so up is up.
type Projection struct {
	View  dynamo.Rect
	dotsX int
	dotsY int
	scale float64
	offX  float64
	offY  float64
}

func NewProjection(view dynamo.Rect, c *Canvas) Projection {
	p := Projection{View: view}
	p.dotsX, p.dotsY = c.Dots()
	w := view.MaxX - view.MinX
	h := view.MaxY - view.MinY
	if w <= 0 || h <= 0 {
		return p
	}
	p.scale = min(float64(p.dotsX-1)/w, float64(p.dotsY-1)/h)
	p.offX = (float64(p.dotsX-1) - w*p.scale) / 2
	p.offY = (float64(p.dotsY-1) - h*p.scale) / 2
	return p
}

func (p Projection) Point(v mgl64.Vec3) (int, int) {
	x := p.offX + (v.X()-p.View.MinX)*p.scale
	y := p.offY + (p.View.MaxY-v.Y())*p.scale
	return int(x + 0.5), int(y + 0.5)
}

// World is the inverse of Point.
func (p Projection) World(x, y int) mgl64.Vec3 {
	if p.scale == 0 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{
		p.View.MinX + (float64(x)-p.offX)/p.scale,
		p.View.MaxY - (float64(y)-p.offY)/p.scale,
		0,
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
