package viz

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/jointctl/internal/config"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.DefaultConfig()
	l, err := cfg.NewLoop()
	if err != nil {
		t.Fatal(err)
	}
	feed, err := cfg.NewFeed()
	if err != nil {
		t.Fatal(err)
	}
	return NewModel(l, feed, feed, cfg.Dt, "arm2")
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelSteps(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(TickMsg(time.Now()))
	m = next.(Model)

	if got := m.loop.Status().Tick; got != uint64(m.ticksPerFrame) {
		t.Errorf("expected %d ticks after one frame, got %d", m.ticksPerFrame, got)
	}
	if len(m.hist.angle) != m.ticksPerFrame {
		t.Errorf("history has %d samples", len(m.hist.angle))
	}
	if !strings.Contains(m.View(), "ARM2") {
		t.Error("view missing title")
	}
}

func TestModelPause(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(key(" "))
	m = next.(Model)
	next, _ = m.Update(TickMsg(time.Now()))
	m = next.(Model)

	if m.loop.Status().Tick != 0 {
		t.Error("paused model advanced the loop")
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("view does not show pause")
	}
}

func TestModelTuneAndReset(t *testing.T) {
	m := newTestModel(t)
	if len(m.knobs) != 7 {
		t.Fatalf("expected 3 estimator and 4 controller knobs, got %d", len(m.knobs))
	}

	// first knob is kalman.q_angle
	before := m.loop.KalmanParameters().QAngle
	next, _ := m.Update(key("up"))
	m = next.(Model)
	if got := m.loop.KalmanParameters().QAngle; got <= before {
		t.Errorf("q_angle %v not increased from %v", got, before)
	}

	next, _ = m.Update(TickMsg(time.Now()))
	m = next.(Model)
	next, _ = m.Update(key("r"))
	m = next.(Model)

	if m.loop.Status().Tick != 0 || len(m.hist.angle) != 0 {
		t.Error("reset kept state")
	}
	if got := m.loop.KalmanParameters().QAngle; got != before {
		t.Errorf("q_angle %v not restored to %v", got, before)
	}
}

func TestModelSelectWraps(t *testing.T) {
	m := newTestModel(t)
	for i := 0; i < len(m.knobs); i++ {
		next, _ := m.Update(key("tab"))
		m = next.(Model)
	}
	if m.sel != 0 {
		t.Errorf("selection %d after full cycle", m.sel)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 5); got != "─────" {
		t.Errorf("empty sparkline %q", got)
	}
	got := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8}, 8)
	if []rune(got)[0] != '▁' || []rune(got)[7] != '█' {
		t.Errorf("unexpected sparkline %q", got)
	}
	if n := len([]rune(got)); n != 8 {
		t.Errorf("expected 8 runes, got %d", n)
	}
}
