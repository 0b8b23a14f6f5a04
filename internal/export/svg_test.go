package export

import (
	"strings"
	"testing"
)

func TestSeriesToSVG(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	svg := SeriesToSVG(x, []Series{
		{Name: "raw0", Values: []float64{-1, 1, -1, 1}},
		{Name: "filtered0", Values: []float64{0, 0.2, 0.1, 0.3}},
	}, 400, 200)

	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Fatal("not a complete svg document")
	}
	if got := strings.Count(svg, "<path"); got != 2 {
		t.Errorf("expected 2 paths, got %d", got)
	}
	if !strings.Contains(svg, ">raw0</text>") || !strings.Contains(svg, ">filtered0</text>") {
		t.Error("legend missing")
	}
	if !strings.Contains(svg, "<line") {
		t.Error("zero line missing for a signal crossing zero")
	}
	// first point at the left edge, last at the right
	if !strings.Contains(svg, `d="M0.0,`) || !strings.Contains(svg, " L400.0,") {
		t.Error("x axis not scaled to the full width")
	}
}

func TestSeriesToSVGTooShort(t *testing.T) {
	if SeriesToSVG([]float64{0}, []Series{{Values: []float64{1}}}, 10, 10) != "" {
		t.Error("expected empty output for one sample")
	}
	if SeriesToSVG([]float64{0, 1}, nil, 10, 10) != "" {
		t.Error("expected empty output without series")
	}
}
