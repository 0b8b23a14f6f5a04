package control

// Controller computes a control input from the current value x and the
// target value xd.
type Controller interface {
	Update(x, xd float64) (float64, error)
	Reset()
}

type None struct{}

func NewNone() *None { return &None{} }

func (n *None) Update(x, xd float64) (float64, error) { return 0, nil }
func (n *None) Reset()                                {}
