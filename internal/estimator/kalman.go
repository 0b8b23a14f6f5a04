// Package estimator fuses a rate measurement with a noisy absolute-angle
// measurement into a single angle estimate.
package estimator

import (
	"math"

	"github.com/san-kum/jointctl/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultQAngle = 0.001
	DefaultQRate  = 0.003
	DefaultRAngle = 0.03
)

// Params are the tunable noise terms. All must be non-negative.
type Params struct {
	QAngle float64 `json:"q_angle" yaml:"q_angle"` // angle process noise density
	QRate  float64 `json:"q_rate" yaml:"q_rate"`   // rate-bias random walk density
	RAngle float64 `json:"r_angle" yaml:"r_angle"` // angle measurement variance
}

func DefaultParams() Params {
	return Params{QAngle: DefaultQAngle, QRate: DefaultQRate, RAngle: DefaultRAngle}
}

func (p Params) Validate() error {
	if p.QAngle < 0 || p.QRate < 0 || p.RAngle < 0 {
		return dynamo.Invalid("kalman noise terms must be non-negative (q_angle=%g q_rate=%g r_angle=%g)",
			p.QAngle, p.QRate, p.RAngle)
	}
	if !dynamo.IsFinite(p.QAngle) || !dynamo.IsFinite(p.QRate) || !dynamo.IsFinite(p.RAngle) {
		return dynamo.Invalid("kalman noise terms must be finite")
	}
	return nil
}

// Kalman is a two-state (angle, rate bias) estimator.
//
// State model with F = [[1, -dt], [0, 1]]:
//
//	angle' = angle + (rate - bias)·dt
//	bias'  = bias
type Kalman struct {
	params Params
	angle  float64
	bias   float64
	p      [2][2]float64
}

func NewKalman() *Kalman {
	return &Kalman{
		params: DefaultParams(),
		p:      [2][2]float64{{1, 0}, {0, 1}},
	}
}

// NewKalmanWith builds an estimator with the given noise terms.
func NewKalmanWith(p Params) (*Kalman, error) {
	k := NewKalman()
	if err := k.SetParameters(p.QAngle, p.QRate, p.RAngle); err != nil {
		return nil, err
	}
	return k, nil
}

// SetParameters replaces the noise terms. They are used from the next Update.
func (k *Kalman) SetParameters(qAngle, qRate, rAngle float64) error {
	p := Params{QAngle: qAngle, QRate: qRate, RAngle: rAngle}
	if err := p.Validate(); err != nil {
		return err
	}
	k.params = p
	return nil
}

// Update runs one predict/correct cycle and returns the angle estimate.
func (k *Kalman) Update(measuredAngle, measuredRate, dt float64) (float64, error) {
	if dt <= 0 || !dynamo.IsFinite(dt) {
		return k.angle, dynamo.Invalid("dt must be positive, got %g", dt)
	}

	k.predict(measuredRate, dt)
	k.correct(measuredAngle)

	return k.angle, nil
}

func (k *Kalman) predict(rate, dt float64) {
	k.angle += (rate - k.bias) * dt

	p := k.p
	dt2 := dt * dt
	qa, qr := k.params.QAngle, k.params.QRate

	// F P Fᵀ
	p00 := p[0][0] - dt*(p[0][1]+p[1][0]) + dt2*p[1][1]
	p01 := p[0][1] - dt*p[1][1]
	p10 := p[1][0] - dt*p[1][1]
	p11 := p[1][1]

	// continuous white-noise model discretized over dt
	p00 += qa*dt + qr*dt2*dt/3
	p01 -= qr * dt2 / 2
	p10 -= qr * dt2 / 2
	p11 += qr * dt

	k.p = [2][2]float64{{p00, p01}, {p10, p11}}
}

func (k *Kalman) correct(z float64) {
	r := k.params.RAngle
	s := k.p[0][0] + r
	if s <= 0 {
		return
	}

	k0 := k.p[0][0] / s
	k1 := k.p[1][0] / s
	innov := z - k.angle

	k.angle = (1-k0)*k.angle + k0*z
	k.bias += k1 * innov

	// Joseph form: P = (I-KH) P (I-KH)ᵀ + K R Kᵀ, H = [1 0]
	p := k.p
	a00 := (1 - k0) * p[0][0]
	a01 := (1 - k0) * p[0][1]
	a10 := p[1][0] - k1*p[0][0]
	a11 := p[1][1] - k1*p[0][1]

	n00 := a00*(1-k0) + r*k0*k0
	n01 := -a00*k1 + a01 + r*k0*k1
	n10 := a10*(1-k0) + r*k1*k0
	n11 := -a10*k1 + a11 + r*k1*k1

	off := (n01 + n10) / 2
	k.p = [2][2]float64{
		{math.Max(n00, 0), off},
		{off, math.Max(n11, 0)},
	}
}

func (k *Kalman) Angle() float64    { return k.angle }
func (k *Kalman) RateBias() float64 { return k.bias }
func (k *Kalman) Params() Params    { return k.params }

// Covariance returns a copy of the error covariance.
func (k *Kalman) Covariance() mat.Symmetric {
	c := mat.NewSymDense(2, nil)
	k.CovarianceInto(c)
	return c
}

// CovarianceInto writes the error covariance into a 2x2 dst without
// allocating.
func (k *Kalman) CovarianceInto(dst *mat.SymDense) {
	dst.SetSym(0, 0, k.p[0][0])
	dst.SetSym(0, 1, k.p[0][1])
	dst.SetSym(1, 1, k.p[1][1])
}

// GetParams implements dynamo.Configurable
func (k *Kalman) GetParams() map[string]float64 {
	return map[string]float64{
		"q_angle": k.params.QAngle,
		"q_rate":  k.params.QRate,
		"r_angle": k.params.RAngle,
	}
}

// SetParam implements dynamo.Configurable
func (k *Kalman) SetParam(name string, value float64) error {
	p := k.params
	switch name {
	case "q_angle":
		p.QAngle = value
	case "q_rate":
		p.QRate = value
	case "r_angle":
		p.RAngle = value
	default:
		return dynamo.Invalid("unknown kalman parameter %q", name)
	}
	return k.SetParameters(p.QAngle, p.QRate, p.RAngle)
}
