package analysis

import (
	"math"
	"math/cmplx"
)

// Response evaluates H(e^jw) = Σ ff[k]·z^-k / Σ fb[k]·z^-k at frequency hz.
func Response(ff, fb []float64, sampleHz, hz float64) complex128 {
	w := 2 * math.Pi * hz / sampleHz
	return poly(ff, w) / poly(fb, w)
}

func poly(c []float64, w float64) complex128 {
	var sum complex128
	for k, v := range c {
		sum += complex(v, 0) * cmplx.Exp(complex(0, -w*float64(k)))
	}
	return sum
}

// FrequencyResponse samples the magnitude response at points frequencies
// from 0 to Nyquist inclusive.
func FrequencyResponse(ff, fb []float64, sampleHz float64, points int) (freqs, mag []float64) {
	if points < 2 {
		points = 2
	}
	freqs = make([]float64, points)
	mag = make([]float64, points)
	nyquist := sampleHz / 2
	for i := range freqs {
		freqs[i] = nyquist * float64(i) / float64(points-1)
		mag[i] = cmplx.Abs(Response(ff, fb, sampleHz, freqs[i]))
	}
	return freqs, mag
}

// CutoffFrequency finds the first frequency where the magnitude drops to
// 1/√2 of its DC value, by bisection. Returns 0 when it never does.
func CutoffFrequency(ff, fb []float64, sampleHz float64) float64 {
	dc := cmplx.Abs(Response(ff, fb, sampleHz, 0))
	target := dc / math.Sqrt2
	nyquist := sampleHz / 2

	// coarse scan for the first crossing, then bisect
	const steps = 512
	lo := 0.0
	for i := 1; i <= steps; i++ {
		hi := nyquist * float64(i) / steps
		if cmplx.Abs(Response(ff, fb, sampleHz, hi)) <= target {
			for j := 0; j < 60; j++ {
				mid := (lo + hi) / 2
				if cmplx.Abs(Response(ff, fb, sampleHz, mid)) > target {
					lo = mid
				} else {
					hi = mid
				}
			}
			return (lo + hi) / 2
		}
		lo = hi
	}
	return 0
}

func toDB(ratio float64) float64 {
	return 10 * math.Log10(ratio)
}

// MagnitudeDB converts a linear magnitude to dB.
func MagnitudeDB(mag float64) float64 {
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag)
}
