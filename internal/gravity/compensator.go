package gravity

import (
	"github.com/san-kum/jointctl/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compensator applies the torque offset table and, when enabled, adds the
// gravity torque of each joint.
type Compensator struct {
	Offsets []float64
	Enabled bool
	Gravity r3.Vec
}

func NewCompensator(offsets []float64, enabled bool) *Compensator {
	c := &Compensator{
		Offsets: make([]float64, len(offsets)),
		Enabled: enabled,
		Gravity: DefaultGravity,
	}
	copy(c.Offsets, offsets)
	return c
}

func (c *Compensator) Len() int { return len(c.Offsets) }

// Joint computes the command torque of joint i. The kinematic input is only
// read when compensation is enabled.
func (c *Compensator) Joint(i int, filtered float64, in JointInput) (float64, error) {
	if !c.Enabled {
		return Estimate(filtered, c.Offsets[i], 0, false), nil
	}
	g, err := Torque(in, c.Gravity)
	if err != nil {
		return 0, err
	}
	return Estimate(filtered, c.Offsets[i], g, true), nil
}

// Check reports whether Apply can succeed with links: the snapshot must
// cover every joint with a non-zero sub-tree mass. Links are ignored when
// compensation is off.
func (c *Compensator) Check(links []JointInput) error {
	if !c.Enabled {
		return nil
	}
	if len(links) != len(c.Offsets) {
		return dynamo.Mismatch("gravity model input", len(links), len(c.Offsets))
	}
	for i, in := range links {
		if in.Mass == 0 {
			return dynamo.Invalid("joint %d: sub-tree mass is zero", i)
		}
	}
	return nil
}

// Apply computes the command torque of every joint into out. Joints are
// independent; the first failure aborts with out partially written, so
// callers that must hold the previous output pass a scratch slice.
func (c *Compensator) Apply(filtered []float64, links []JointInput, out []float64) error {
	n := len(c.Offsets)
	if len(filtered) != n {
		return dynamo.Mismatch("filtered torque", len(filtered), n)
	}
	if len(out) != n {
		return dynamo.Mismatch("command torque", len(out), n)
	}
	if c.Enabled && len(links) != n {
		return dynamo.Mismatch("gravity model input", len(links), n)
	}

	for i := range out {
		var in JointInput
		if c.Enabled {
			in = links[i]
		}
		tau, err := c.Joint(i, filtered[i], in)
		if err != nil {
			return err
		}
		out[i] = tau
	}
	return nil
}
