package loop

import (
	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/gravity"
)

// Snapshot is one tick of sensor input.
type Snapshot struct {
	Angles     dynamo.Vector        // joint angles
	Torque     dynamo.Vector        // raw torque per joint
	Links      []gravity.JointInput // kinematic snapshot, may be nil when compensation is off
	GyroRate   float64
	AccelAngle float64
	Current    float64 // tracked value
	Target     float64 // reference for the tracked value
}

// Output is written to the sink once per tick. Torque is owned by the loop
// and overwritten on the next tick; sinks that keep it must copy.
type Output struct {
	Tick   uint64
	Torque []float64
	Angle  float64
	U      float64
	Held   bool
}

// Record is the per-tick view handed to metrics and observers.
type Record struct {
	Tick       uint64
	Time       float64
	Raw        []float64
	Filtered   []float64
	Command    []float64
	AccelAngle float64
	Angle      float64
	Current    float64
	Target     float64
	U          float64
	Held       bool
}

func (r Record) Clone() Record {
	c := r
	c.Raw = dynamo.Vector(r.Raw).Clone()
	c.Filtered = dynamo.Vector(r.Filtered).Clone()
	c.Command = dynamo.Vector(r.Command).Clone()
	return c
}

type Source interface {
	Next(tick uint64) (Snapshot, error)
}

type Sink interface {
	Write(out Output) error
}

type Metric interface {
	Name() string
	Observe(rec Record)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(rec Record)
}

type Config struct {
	Dt         float64
	Ticks      int // 0 runs until the context is done
	DebugLevel int
	Realtime   bool // pace ticks to wall-clock dt
	Record     bool // keep every tick in Result.Records
}

type Result struct {
	Records []Record
	Metrics map[string]float64
	Ticks   uint64
	Skipped uint64
}

type Status struct {
	Tick    uint64 `json:"tick"`
	Skipped uint64 `json:"skipped"`
}

// Discard is a Sink that drops every output.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(Output) error { return nil }
