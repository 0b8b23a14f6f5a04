package dynamo

import "math"

// Vector is a per-joint sample vector.
type Vector []float64

// Clone returns an independent copy; nil stays nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// CheckLen returns ErrSizeMismatch when len(v) != n.
func (v Vector) CheckLen(what string, n int) error {
	if len(v) != n {
		return Mismatch(what, len(v), n)
	}
	return nil
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Clamp limits x to [-limit, limit]. A non-positive limit leaves x unbounded.
func Clamp(x, limit float64) float64 {
	if limit <= 0 {
		return x
	}
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

// Configurable is implemented by components that support live tuning.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
