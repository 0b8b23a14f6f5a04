package metrics

import (
	"math"

	"github.com/san-kum/jointctl/internal/loop"
)

// RMS accumulates the root mean square of a per-tick residual.
type RMS struct {
	name     string
	residual func(loop.Record) float64
	sumSq    float64
	samples  int
}

func (r *RMS) Name() string { return r.name }

func (r *RMS) Observe(rec loop.Record) {
	e := r.residual(rec)
	r.sumSq += e * e
	r.samples++
}

func (r *RMS) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return math.Sqrt(r.sumSq / float64(r.samples))
}

func (r *RMS) Reset() {
	r.sumSq = 0
	r.samples = 0
}

// NewTrackingError is the RMS of target minus current value.
func NewTrackingError() *RMS {
	return &RMS{
		name:     "tracking_error",
		residual: func(rec loop.Record) float64 { return rec.Target - rec.Current },
	}
}

// NewAngleResidual is the RMS of the accelerometer angle minus the fused
// estimate.
func NewAngleResidual() *RMS {
	return &RMS{
		name:     "angle_residual",
		residual: func(rec loop.Record) float64 { return rec.AccelAngle - rec.Angle },
	}
}

// NewFilterResidual is the RMS over joints of raw minus filtered torque.
func NewFilterResidual() *RMS {
	return &RMS{
		name: "filter_residual",
		residual: func(rec loop.Record) float64 {
			if len(rec.Raw) != len(rec.Filtered) || len(rec.Raw) == 0 {
				return 0
			}
			sum := 0.0
			for i := range rec.Raw {
				d := rec.Raw[i] - rec.Filtered[i]
				sum += d * d
			}
			return math.Sqrt(sum / float64(len(rec.Raw)))
		},
	}
}

// Default returns the metric set attached to every run.
func Default(commandLimit float64) []loop.Metric {
	return []loop.Metric{
		NewControlEffort(),
		NewStability(commandLimit),
		NewTrackingError(),
		NewAngleResidual(),
		NewFilterResidual(),
	}
}
