package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// PowerSpectrum returns the one-sided power spectrum of data sampled at
// sampleHz, Hann windowed. freqs[i] is the center of bin i.
func PowerSpectrum(data []float64, sampleHz float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 || sampleHz <= 0 {
		return nil, nil
	}

	x := make([]float64, n)
	copy(x, data)
	window.Apply(x, window.Hann)

	spec := fft.FFTReal(x)
	bins := n/2 + 1
	freqs = make([]float64, bins)
	power = make([]float64, bins)
	for i := 0; i < bins; i++ {
		freqs[i] = float64(i) * sampleHz / float64(n)
		a := cmplx.Abs(spec[i])
		power[i] = a * a / float64(n)
	}
	return freqs, power
}

// BandPower sums power over bins with lo <= f < hi.
func BandPower(freqs, power []float64, lo, hi float64) float64 {
	sum := 0.0
	for i, f := range freqs {
		if f >= lo && f < hi {
			sum += power[i]
		}
	}
	return sum
}

// DominantFrequency is the frequency of the largest non-DC bin.
func DominantFrequency(freqs, power []float64) float64 {
	best, at := -1.0, 0.0
	for i := 1; i < len(power); i++ {
		if power[i] > best {
			best, at = power[i], freqs[i]
		}
	}
	return at
}

// Attenuation compares raw and filtered power above aboveHz and returns the
// reduction in dB. Zero when the raw signal has no power there.
func Attenuation(raw, filtered []float64, sampleHz, aboveHz float64) float64 {
	fr, pr := PowerSpectrum(raw, sampleHz)
	ff, pf := PowerSpectrum(filtered, sampleHz)
	in := BandPower(fr, pr, aboveHz, sampleHz)
	out := BandPower(ff, pf, aboveHz, sampleHz)
	if in == 0 || out == 0 {
		return 0
	}
	return toDB(in / out)
}
