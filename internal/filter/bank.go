package filter

import "github.com/san-kum/jointctl/internal/dynamo"

// Bank holds one filter per joint. Joint states are disjoint.
type Bank struct {
	filters []*IIR
}

func NewBank(joints, order int, feedforward, feedback []float64) (*Bank, error) {
	if joints < 1 {
		return nil, dynamo.Invalid("joint count %d < 1", joints)
	}
	b := &Bank{filters: make([]*IIR, joints)}
	for i := range b.filters {
		f, err := New(order, feedforward, feedback)
		if err != nil {
			return nil, err
		}
		b.filters[i] = f
	}
	return b, nil
}

func (b *Bank) Len() int { return len(b.filters) }

// Joint returns the filter for joint i.
func (b *Bank) Joint(i int) *IIR { return b.filters[i] }

// Step filters in into out. On a length mismatch neither out nor any
// filter history is touched.
func (b *Bank) Step(in, out []float64) error {
	if len(in) != len(b.filters) {
		return dynamo.Mismatch("filter input", len(in), len(b.filters))
	}
	if len(out) != len(b.filters) {
		return dynamo.Mismatch("filter output", len(out), len(b.filters))
	}
	for i, f := range b.filters {
		out[i] = f.Step(in[i])
	}
	return nil
}

func (b *Bank) Reset() {
	for _, f := range b.filters {
		f.Reset()
	}
}
