package filter

import (
	"math"

	"github.com/san-kum/jointctl/internal/dynamo"
)

// Butterworth designs an order-n low-pass filter with the bilinear
// transform, prewarped at cutoffHz. The result is normalized so fb[0] == 1.
//
// Butterworth(2, 5, 400) reproduces octave's butter(2, 5/200).
func Butterworth(order int, cutoffHz, sampleHz float64) (ff, fb []float64, err error) {
	if order < 1 {
		return nil, nil, dynamo.Invalid("butterworth order %d < 1", order)
	}
	if sampleHz <= 0 || cutoffHz <= 0 || cutoffHz >= sampleHz/2 {
		return nil, nil, dynamo.Invalid("cutoff %.4g Hz outside (0, %.4g)", cutoffHz, sampleHz/2)
	}

	k := math.Tan(math.Pi * cutoffHz / sampleHz)
	k2 := k * k

	num := []float64{1}
	den := []float64{1}

	// analog poles at -sin(theta) ± j cos(theta)
	for i := 0; i < order/2; i++ {
		theta := math.Pi * float64(2*i+1) / float64(2*order)
		zk := 2 * math.Sin(theta) * k
		num = polyMul(num, []float64{k2, 2 * k2, k2})
		den = polyMul(den, []float64{1 + zk + k2, 2 * (k2 - 1), 1 - zk + k2})
	}
	if order%2 == 1 {
		num = polyMul(num, []float64{k, k})
		den = polyMul(den, []float64{1 + k, k - 1})
	}

	d0 := den[0]
	for i := range den {
		num[i] /= d0
		den[i] /= d0
	}
	return num, den, nil
}

func polyMul(p, q []float64) []float64 {
	r := make([]float64, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			r[i+j] += a * b
		}
	}
	return r
}
