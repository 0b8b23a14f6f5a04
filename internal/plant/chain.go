// Package plant is a synthetic robot used to drive the control loop without
// hardware: a planar serial chain for the gravity snapshot and a seeded
// sensor model for torque, gyro and accelerometer readings.
package plant

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/gravity"
)

// Link is one rigid link of a planar chain. Every joint rotates about the
// world y axis and each link's center of mass sits at half its length.
type Link struct {
	Mass   float64 `yaml:"mass"`
	Length float64 `yaml:"length"`
}

// Chain computes the per-joint kinematic snapshot of a planar serial chain
// rooted at the world origin. Its buffers are reused between calls.
type Chain struct {
	links []Link
	rot   []*r3.Mat
	pos   []r3.Vec
	com   []r3.Vec
}

func NewChain(links []Link) (*Chain, error) {
	if len(links) == 0 {
		return nil, dynamo.Invalid("chain needs at least one link")
	}
	c := &Chain{
		links: make([]Link, len(links)),
		rot:   make([]*r3.Mat, len(links)),
		pos:   make([]r3.Vec, len(links)),
		com:   make([]r3.Vec, len(links)),
	}
	for i, l := range links {
		if l.Mass <= 0 || !dynamo.IsFinite(l.Mass) {
			return nil, dynamo.Invalid("link %d mass must be positive, got %g", i, l.Mass)
		}
		if l.Length < 0 || !dynamo.IsFinite(l.Length) {
			return nil, dynamo.Invalid("link %d length must be non-negative, got %g", i, l.Length)
		}
		c.links[i] = l
		c.rot[i] = r3.NewMat(nil)
	}
	return c, nil
}

func (c *Chain) Joints() int { return len(c.links) }

// Inputs fills out with the snapshot for joint angles q. The rotations in
// out point into the chain and change on the next call.
func (c *Chain) Inputs(q []float64, out []gravity.JointInput) error {
	n := len(c.links)
	if len(q) != n {
		return dynamo.Mismatch("joint angles", len(q), n)
	}
	if len(out) != n {
		return dynamo.Mismatch("gravity model input", len(out), n)
	}

	var p r3.Vec
	phi := 0.0
	for i, l := range c.links {
		phi += q[i]
		setRotY(c.rot[i], phi)
		dir := r3.Vec{X: math.Cos(phi), Z: -math.Sin(phi)}

		c.pos[i] = p
		c.com[i] = r3.Add(p, r3.Scale(l.Length/2, dir))
		p = r3.Add(p, r3.Scale(l.Length, dir))
	}

	var mass float64
	var center r3.Vec
	for i := n - 1; i >= 0; i-- {
		mass += c.links[i].Mass
		center = r3.Add(center, r3.Scale(c.links[i].Mass, c.com[i]))
		out[i] = gravity.JointInput{
			Mass:     mass,
			Center:   center,
			Position: c.pos[i],
			Rotation: c.rot[i],
			Axis:     r3.Vec{Y: 1},
		}
	}
	return nil
}

func setRotY(m *r3.Mat, phi float64) {
	s, co := math.Sin(phi), math.Cos(phi)
	m.Set(0, 0, co)
	m.Set(0, 1, 0)
	m.Set(0, 2, s)
	m.Set(1, 0, 0)
	m.Set(1, 1, 1)
	m.Set(1, 2, 0)
	m.Set(2, 0, -s)
	m.Set(2, 1, 0)
	m.Set(2, 2, co)
}
