// Package analysis provides frequency-domain tools for torque signals and
// filter designs.
//
//   - [PowerSpectrum]: one-sided power spectrum of a sampled signal
//   - [BandPower]: power between two frequencies
//   - [Attenuation]: noise rejection of a filter, raw versus filtered, in dB
//   - [FrequencyResponse]: magnitude response of IIR coefficients
//   - [CutoffFrequency]: -3 dB point of a low-pass design
//
// # Checking a design
//
//	ff, fb, _ := filter.Butterworth(2, 5, 200)
//	fc := analysis.CutoffFrequency(ff, fb, 200) // ~5 Hz
package analysis
