// Package filter provides recursive digital filters for per-joint signal
// conditioning.
//
//   - [IIR]: direct-form recursive filter of arbitrary order
//   - [Bank]: one independent [IIR] per joint
//   - [Butterworth]: low-pass coefficient design
//
// # Usage
//
//	ff, fb, _ := filter.Butterworth(2, 5, 400)
//	bank, _ := filter.NewBank(joints, 2, ff, fb)
//	if err := bank.Step(rawTorque, filtered); err != nil {
//	    // length mismatch, filtered is untouched
//	}
//
// Stability is the caller's responsibility: coefficients must describe a
// stable discrete transfer function.
package filter
