package metrics

import (
	"math"

	"github.com/san-kum/jointctl/internal/loop"
)

// Stability is the fraction of ticks whose command torques all stay within
// threshold. Held ticks count as violations.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(rec loop.Record) {
	s.samples++
	if rec.Held {
		s.violations++
		return
	}
	for _, val := range rec.Command {
		if math.Abs(val) > s.threshold || math.IsNaN(val) {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
