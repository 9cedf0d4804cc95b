package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
)

var voiceColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Magenta,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Red,
	asciigraph.Blue,
}

// Bin counts events into bins of equal width over [0, duration). Weights,
// when given, are summed instead of counting one per event.
func Bin(times []float64, weights []float64, duration float64, bins int) []float64 {
	out := make([]float64, max(bins, 1))
	if duration <= 0 {
		return out
	}
	for i, t := range times {
		if t < 0 || t >= duration {
			continue
		}
		idx := int(t / duration * float64(len(out)))
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		out[idx] += w
	}
	return out
}

// Plot draws one series.
func Plot(data []float64, caption string, width, height int) string {
	if len(data) == 0 {
		return caption + ": no data"
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// PlotVoices draws one colored series per voice.
func PlotVoices(series [][]float64, caption string, width, height int) string {
	var data [][]float64
	var colors []asciigraph.AnsiColor
	var legends []string
	for v, s := range series {
		if len(s) == 0 {
			continue
		}
		data = append(data, s)
		colors = append(colors, voiceColors[v%len(voiceColors)])
		legends = append(legends, fmt.Sprintf("voice %d", v))
	}
	if len(data) == 0 {
		return caption + ": no data"
	}
	return asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(legends...),
	)
}
