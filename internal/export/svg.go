// Package export renders stored run series as standalone SVG line charts.
package export

import (
	"fmt"
	"math"
	"strings"
)

// Series is one named line of a chart.
type Series struct {
	Name   string
	Values []float64
}

var palette = []string{"#00ff88", "#00ccff", "#ffcc00", "#ff4444", "#ff00ff", "#cccccc"}

// SeriesToSVG draws every series against x on shared axes, with a legend in
// the top-left corner. Returns "" with fewer than two samples.
func SeriesToSVG(x []float64, series []Series, width, height int) string {
	if len(x) < 2 || len(series) == 0 {
		return ""
	}

	minX, maxX := x[0], x[len(x)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if minY < 0 && maxY > 0 {
		zero := float64(height) - (0-minY)/rangeY*float64(height)
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#444466" stroke-width="1"/>
`, zero, width, zero)
	}

	for i, s := range series {
		color := palette[i%len(palette)]
		n := min(len(s.Values), len(x))
		if n < 2 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
		for j := 0; j < n; j++ {
			px := (x[j] - minX) / rangeX * float64(width)
			py := float64(height) - (s.Values[j]-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", px, py)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", px, py)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*i, color, s.Name)
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}
