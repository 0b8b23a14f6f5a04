package control

import (
	"github.com/san-kum/jointctl/internal/dynamo"
)

// TwoDof is a feedback/feedforward tracking controller. The error passes
// through a first-order lag with time constant Tc before the gain Ke:
//
//	integral += (e - integral)·dt/tc   (tc > 0)
//	integral  = e                      (tc == 0)
//	u = clamp(ke·integral, ±range)
type TwoDof struct {
	Ke    float64
	Tc    float64
	Dt    float64
	Range float64 // output limit, 0 = unbounded

	integral float64
	ready    bool
}

// NewTwoDof returns an uninitialized controller; Update fails until Setup.
func NewTwoDof() *TwoDof {
	return &TwoDof{}
}

// NewTwoDofWith returns a controller already set up.
func NewTwoDofWith(ke, tc, dt, rng float64) (*TwoDof, error) {
	c := NewTwoDof()
	if err := c.Setup(ke, tc, dt, rng); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(ke, tc, dt, rng float64) error {
	if dt <= 0 || !dynamo.IsFinite(dt) {
		return dynamo.Invalid("dt must be positive, got %g", dt)
	}
	if tc < 0 || !dynamo.IsFinite(tc) {
		return dynamo.Invalid("time constant must be non-negative, got %g", tc)
	}
	if rng < 0 || !dynamo.IsFinite(rng) {
		return dynamo.Invalid("range must be non-negative, got %g", rng)
	}
	if !dynamo.IsFinite(ke) {
		return dynamo.Invalid("gain must be finite, got %g", ke)
	}
	return nil
}

// Setup sets gains and makes the controller ready. The integrator is zeroed.
func (c *TwoDof) Setup(ke, tc, dt, rng float64) error {
	if err := validate(ke, tc, dt, rng); err != nil {
		return err
	}
	c.Ke, c.Tc, c.Dt, c.Range = ke, tc, dt, rng
	c.integral = 0
	c.ready = true
	return nil
}

// Reset zeroes the integrator; gains and readiness are kept.
func (c *TwoDof) Reset() {
	c.integral = 0
}

func (c *TwoDof) Update(x, xd float64) (float64, error) {
	if !c.ready {
		return 0, dynamo.ErrInvalidState
	}

	e := xd - x
	if c.Tc > 0 {
		c.integral += (e - c.integral) * c.Dt / c.Tc
	} else {
		c.integral = e
	}

	return dynamo.Clamp(c.Ke*c.integral, c.Range), nil
}

func (c *TwoDof) Ready() bool       { return c.ready }
func (c *TwoDof) Integral() float64 { return c.integral }

// GetParams returns tunable parameters for live adjustment
func (c *TwoDof) GetParams() map[string]float64 {
	return map[string]float64{
		"ke":    c.Ke,
		"tc":    c.Tc,
		"dt":    c.Dt,
		"range": c.Range,
	}
}

// SetParam adjusts one parameter, validated like Setup. The integrator is
// kept so tuning does not bump the output.
func (c *TwoDof) SetParam(name string, value float64) error {
	ke, tc, dt, rng := c.Ke, c.Tc, c.Dt, c.Range
	switch name {
	case "ke":
		ke = value
	case "tc":
		tc = value
	case "dt":
		dt = value
	case "range":
		rng = value
	default:
		return dynamo.Invalid("unknown controller parameter %q", name)
	}
	if err := validate(ke, tc, dt, rng); err != nil {
		return err
	}
	c.Ke, c.Tc, c.Dt, c.Range = ke, tc, dt, rng
	return nil
}
