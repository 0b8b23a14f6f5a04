// Package gravity converts per-joint sub-tree mass data into gravity torque
// and builds the per-joint command torque from a filtered torque sample.
//
// The kinematic snapshot (sub-tree mass, mass-weighted center, joint frame)
// comes from an external kinematics engine once per tick; this package only
// reads it.
package gravity

import (
	"github.com/san-kum/jointctl/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultGravity is the gravity vector in the world frame.
var DefaultGravity = r3.Vec{X: 0, Y: 0, Z: 9.8}

// JointInput is one joint's slice of the kinematic snapshot, in world frame.
type JointInput struct {
	Mass     float64 // sub-tree mass
	Center   r3.Vec  // sub-tree mass-weighted center (sum of m·c)
	Position r3.Vec  // joint position
	Rotation *r3.Mat // joint rotation, nil means identity
	Axis     r3.Vec  // joint axis in the joint frame
}

// Torque returns the moment of the sub-tree's weight about the joint axis:
//
//	((m·g) × (c/m − p)) · (R·a)
func Torque(in JointInput, g r3.Vec) (float64, error) {
	if in.Mass == 0 {
		return 0, dynamo.Invalid("sub-tree mass is zero")
	}
	weight := r3.Scale(in.Mass, g)
	arm := r3.Sub(r3.Scale(1/in.Mass, in.Center), in.Position)

	axis := in.Axis
	if in.Rotation != nil {
		axis = in.Rotation.MulVec(in.Axis)
	}
	return r3.Dot(r3.Cross(weight, arm), axis), nil
}

// Estimate is the command torque for one joint.
func Estimate(filtered, offset, gravityTorque float64, enable bool) float64 {
	if !enable {
		return filtered - offset
	}
	return filtered - offset + gravityTorque
}
