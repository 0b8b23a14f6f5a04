package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/loop"
)

const (
	historyCapacity = 400
	frameRate       = 30
	graphWidth      = 60
	graphHeight     = 8
)

type TickMsg time.Time

// history is shared by value copies of Model and filled by the loop.
type history struct {
	angle   []float64
	accel   []float64
	command []float64
	current []float64
	target  []float64
	last    loop.Record
	held    int
}

func push(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > historyCapacity {
		buf = buf[1:]
	}
	return buf
}

func (h *history) OnTick(rec loop.Record) {
	h.angle = push(h.angle, rec.Angle)
	h.accel = push(h.accel, rec.AccelAngle)
	if len(rec.Command) > 0 {
		h.command = push(h.command, rec.Command[0])
	}
	h.current = push(h.current, rec.Current)
	h.target = push(h.target, rec.Target)
	if rec.Held {
		h.held++
	}
	h.last = rec
	h.last.Command = append(h.last.Command[:0:0], rec.Command...)
}

func (h *history) clear() {
	*h = history{}
}

// knob is one tunable parameter, named owner.param.
type knob struct {
	owner string
	name  string
	conf  dynamo.Configurable
}

type Model struct {
	loop  *loop.Loop
	src   loop.Source
	sink  loop.Sink
	title string

	ticksPerFrame int
	running       bool
	err           error

	hist    *history
	knobs   []knob
	initial map[string]float64
	sel     int
}

// NewModel wraps a loop and its feed. dt sets how many ticks run per frame.
func NewModel(l *loop.Loop, src loop.Source, sink loop.Sink, dt float64, title string) Model {
	h := &history{}
	l.AddObserver(h)

	var knobs []knob
	add := func(owner string, c dynamo.Configurable) {
		names := make([]string, 0)
		for k := range c.GetParams() {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, n := range names {
			knobs = append(knobs, knob{owner: owner, name: n, conf: c})
		}
	}
	add("kalman", estimatorKnob{l})
	if c, ok := l.Controller().(dynamo.Configurable); ok {
		add("controller", c)
	}

	initial := make(map[string]float64, len(knobs))
	for _, k := range knobs {
		initial[k.owner+"."+k.name] = k.conf.GetParams()[k.name]
	}

	perFrame := int(1 / (dt * frameRate))
	if perFrame < 1 {
		perFrame = 1
	}

	return Model{
		loop:          l,
		src:           src,
		sink:          sink,
		title:         title,
		ticksPerFrame: perFrame,
		running:       true,
		hist:          h,
		knobs:         knobs,
		initial:       initial,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			if len(m.knobs) > 0 {
				m.sel = (m.sel + 1) % len(m.knobs)
			}
		case "up", "k":
			m.adjust(1.05)
		case "down", "j":
			m.adjust(0.95)
		}
	case TickMsg:
		if m.running && m.err == nil {
			m.err = m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() error {
	for i := 0; i < m.ticksPerFrame; i++ {
		snap, err := m.src.Next(m.loop.Status().Tick)
		if err != nil {
			return err
		}
		out, err := m.loop.Tick(snap)
		if err != nil {
			return err
		}
		if err := m.sink.Write(out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) adjust(factor float64) {
	if len(m.knobs) == 0 {
		return
	}
	k := m.knobs[m.sel]
	v := k.conf.GetParams()[k.name]
	if v == 0 {
		v = 1e-4
	}
	// rejected values leave the parameter as it was
	_ = k.conf.SetParam(k.name, v*factor)
}

func (m *Model) reset() {
	m.loop.Reset()
	m.hist.clear()
	m.err = nil
	for _, k := range m.knobs {
		_ = k.conf.SetParam(k.name, m.initial[k.owner+"."+k.name])
	}
}

func (m Model) View() string {
	var s strings.Builder

	status := statusRunning.Render("RUNNING")
	switch {
	case m.err != nil:
		status = statusHeld.Render("STOPPED: " + m.err.Error())
	case !m.running:
		status = statusPaused.Render("PAUSED")
	case m.hist.last.Held:
		status = statusHeld.Render("HOLDING")
	}
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(status + "\n\n")

	st := m.loop.Status()
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("tick", fmt.Sprintf("%d", st.Tick))
	row("skipped", fmt.Sprintf("%d", st.Skipped))
	row("angle", fmt.Sprintf("%+.4f rad", m.hist.last.Angle))
	row("u", fmt.Sprintf("%+.4f", m.hist.last.U))
	row("command", formatVec(m.hist.last.Command))

	healthy := 1.0
	if st.Tick > 0 {
		healthy = 1 - float64(st.Skipped)/float64(st.Tick)
	}
	row("healthy", ProgressBar(healthy, 20))
	s.WriteString("\n")

	for i, k := range m.knobs {
		label := fmt.Sprintf("%s.%s", k.owner, k.name)
		val := fmt.Sprintf("%.5g", k.conf.GetParams()[k.name])
		if i == m.sel {
			s.WriteString(activeParamStyle.Render("> "+label+" = "+val) + "\n")
		} else {
			s.WriteString("  " + label + " = " + val + "\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(panelStyle.Render(m.graphs()))
	s.WriteString(helpStyle.Render("\nspace pause • r reset • tab select • ↑/↓ tune • q quit"))
	return s.String()
}

func (m Model) graphs() string {
	h := m.hist
	if len(h.angle) < 2 {
		return "waiting for data"
	}

	orient := asciigraph.PlotMany([][]float64{h.accel, h.angle},
		asciigraph.Height(graphHeight),
		asciigraph.Width(graphWidth),
		asciigraph.SeriesColors(asciigraph.Gray, asciigraph.Green),
		asciigraph.Caption("orientation: accelerometer (gray), fused (green)"),
	)
	track := asciigraph.PlotMany([][]float64{h.target, h.current},
		asciigraph.Height(graphHeight),
		asciigraph.Width(graphWidth),
		asciigraph.SeriesColors(asciigraph.Gray, asciigraph.Cyan),
		asciigraph.Caption("tracking: target (gray), current (cyan)"),
	)

	parts := []string{graphStyle.Render(orient), graphStyle.Render(track)}
	if len(h.command) > 0 {
		parts = append(parts, "joint 0 command "+Sparkline(h.command, graphWidth))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%+.3f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// estimatorKnob tunes the estimator through the loop's parameter mailbox.
type estimatorKnob struct{ l *loop.Loop }

func (e estimatorKnob) GetParams() map[string]float64 {
	p := e.l.KalmanParameters()
	return map[string]float64{"q_angle": p.QAngle, "q_rate": p.QRate, "r_angle": p.RAngle}
}

func (e estimatorKnob) SetParam(name string, value float64) error {
	p := e.l.KalmanParameters()
	switch name {
	case "q_angle":
		p.QAngle = value
	case "q_rate":
		p.QRate = value
	case "r_angle":
		p.RAngle = value
	default:
		return dynamo.Invalid("unknown estimator parameter %q", name)
	}
	if !e.l.SetKalmanParameters(p.QAngle, p.QRate, p.RAngle) {
		return dynamo.Invalid("estimator rejected %s=%g", name, value)
	}
	return nil
}
