package filter

import "github.com/san-kum/jointctl/internal/dynamo"

// IIR is a recursive filter
//
//	y = (a0·x + a1·x1 + … + an·xn − b1·y1 − … − bn·yn) / b0
//
// where ff holds a and fb holds b. x[0] and y[0] are the most recent sample.
type IIR struct {
	order int
	ff    []float64
	fb    []float64
	x     []float64
	y     []float64
}

func New(order int, feedforward, feedback []float64) (*IIR, error) {
	if order < 1 {
		return nil, dynamo.Invalid("filter order %d < 1", order)
	}
	if len(feedforward) != order+1 {
		return nil, dynamo.Invalid("feedforward has %d coefficients, want %d", len(feedforward), order+1)
	}
	if len(feedback) != order+1 {
		return nil, dynamo.Invalid("feedback has %d coefficients, want %d", len(feedback), order+1)
	}
	if feedback[0] == 0 {
		return nil, dynamo.Invalid("feedback[0] must be non-zero")
	}

	f := &IIR{
		order: order,
		ff:    make([]float64, order+1),
		fb:    make([]float64, order+1),
		x:     make([]float64, order+1),
		y:     make([]float64, order+1),
	}
	copy(f.ff, feedforward)
	copy(f.fb, feedback)
	return f, nil
}

// Step pushes one input sample and returns the filtered output.
func (f *IIR) Step(in float64) float64 {
	n := f.order
	copy(f.x[1:], f.x[:n])
	copy(f.y[1:], f.y[:n])
	f.x[0] = in

	acc := 0.0
	for i := 0; i <= n; i++ {
		acc += f.ff[i] * f.x[i]
	}
	for i := 1; i <= n; i++ {
		acc -= f.fb[i] * f.y[i]
	}
	out := acc / f.fb[0]
	f.y[0] = out
	return out
}

// Reset clears the history, as if the signal had been zero forever.
func (f *IIR) Reset() {
	for i := range f.x {
		f.x[i] = 0
		f.y[i] = 0
	}
}

func (f *IIR) Order() int { return f.order }

func (f *IIR) Feedforward() []float64 {
	c := make([]float64, len(f.ff))
	copy(c, f.ff)
	return c
}

func (f *IIR) Feedback() []float64 {
	c := make([]float64, len(f.fb))
	copy(c, f.fb)
	return c
}

// DCGain returns sum(a)/sum(b), the steady-state response to a unit step.
func (f *IIR) DCGain() float64 {
	num, den := 0.0, 0.0
	for i := range f.ff {
		num += f.ff[i]
		den += f.fb[i]
	}
	return num / den
}
