package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/filter"
)

// Property keys of the torque filter component.
const (
	PropFilterParams = "torque_filter_params"
	PropTorqueOffset = "torque_offset"
	PropGravity      = "gravity_compensation"
	PropDt           = "dt"
	PropDebugLevel   = "debug_level"
)

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloat(key, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, dynamo.Invalid("%s: %v", key, err)
	}
	return v, nil
}

func parseInt(key, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, dynamo.Invalid("%s: %v", key, err)
	}
	return v, nil
}

// ParseFilterParams reads "n, fb0, fb1..fbn, ff0..ffn". The stored feedback
// tail fb1..fbn is the negated denominator, so the returned feedback is
// {fb0, -fb1, ..., -fbn}.
func ParseFilterParams(s string) (order int, feedforward, feedback []float64, err error) {
	fields := splitList(s)
	order, err = parseInt(PropFilterParams, fields[0])
	if err != nil {
		return 0, nil, nil, err
	}
	if order < 1 {
		return 0, nil, nil, dynamo.Invalid("%s: order must be at least 1, got %d", PropFilterParams, order)
	}
	if want := 2*order + 3; len(fields) != want {
		return 0, nil, nil, dynamo.Invalid("%s: %d values for order %d, want %d", PropFilterParams, len(fields), order, want)
	}

	feedback = make([]float64, order+1)
	feedforward = make([]float64, order+1)
	for i := 0; i <= order; i++ {
		fb, err := parseFloat(PropFilterParams, fields[i+1])
		if err != nil {
			return 0, nil, nil, err
		}
		ff, err := parseFloat(PropFilterParams, fields[i+order+2])
		if err != nil {
			return 0, nil, nil, err
		}
		if i > 0 {
			fb = -fb
		}
		feedback[i] = fb
		feedforward[i] = ff
	}
	return order, feedforward, feedback, nil
}

// FormatFilterParams is the inverse of ParseFilterParams.
func FormatFilterParams(feedforward, feedback []float64) string {
	order := len(feedback) - 1
	var b strings.Builder
	fmt.Fprintf(&b, "%d", order)
	for i, v := range feedback {
		if i > 0 {
			v = -v
		}
		b.WriteString(", ")
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	for _, v := range feedforward {
		b.WriteString(", ")
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// ParseOffsets reads a comma separated offset list of exactly joints values.
func ParseOffsets(s string, joints int) ([]float64, error) {
	fields := splitList(s)
	if len(fields) != joints {
		return nil, dynamo.Invalid("%s: %d values for %d joints", PropTorqueOffset, len(fields), joints)
	}
	out := make([]float64, joints)
	for i, f := range fields {
		v, err := parseFloat(PropTorqueOffset, f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// FilterSpec resolves the torque filter: the torque_filter_params property,
// then explicit coefficients, then a Butterworth design at 1/dt, then an
// identity filter.
func (c *Config) FilterSpec() (order int, feedforward, feedback []float64, err error) {
	if s, ok := c.Properties[PropFilterParams]; ok {
		order, feedforward, feedback, err = ParseFilterParams(s)
	} else if len(c.Filter.Feedforward) > 0 || len(c.Filter.Feedback) > 0 {
		order = len(c.Filter.Feedback) - 1
		feedforward, feedback = c.Filter.Feedforward, c.Filter.Feedback
	} else if c.Filter.Order > 0 && c.Filter.CutoffHz > 0 {
		order = c.Filter.Order
		feedforward, feedback, err = filter.Butterworth(order, c.Filter.CutoffHz, 1/c.Dt)
	} else {
		order, feedforward, feedback = 1, []float64{1, 0}, []float64{1, 0}
	}
	if err != nil {
		return 0, nil, nil, err
	}

	// validate here so bad coefficients fail at load time
	if _, err := filter.New(order, feedforward, feedback); err != nil {
		return 0, nil, nil, err
	}
	return order, feedforward, feedback, nil
}

// Offsets resolves the torque offset table; missing offsets are zero.
func (c *Config) Offsets() ([]float64, error) {
	n := c.Joints()
	if s, ok := c.Properties[PropTorqueOffset]; ok {
		return ParseOffsets(s, n)
	}
	if c.TorqueOffset == nil {
		return make([]float64, n), nil
	}
	if len(c.TorqueOffset) != n {
		return nil, dynamo.Invalid("%s: %d values for %d joints", PropTorqueOffset, len(c.TorqueOffset), n)
	}
	return append([]float64(nil), c.TorqueOffset...), nil
}

func (c *Config) GravityCompensation() (bool, error) {
	s, ok := c.Properties[PropGravity]
	if !ok {
		return c.Compensate, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, dynamo.Invalid("%s: %v", PropGravity, err)
	}
	return v, nil
}
