package config

import (
	log "github.com/sirupsen/logrus"

	"github.com/san-kum/jointctl/internal/control"
	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/filter"
	"github.com/san-kum/jointctl/internal/gravity"
	"github.com/san-kum/jointctl/internal/loop"
	"github.com/san-kum/jointctl/internal/metrics"
	"github.com/san-kum/jointctl/internal/plant"
)

func (c *Config) NewController() (control.Controller, error) {
	switch c.Controller.Type {
	case "", "twodof":
		return control.NewTwoDofWith(c.Controller.Ke, c.Controller.Tc, c.Dt, c.Controller.Range)
	case "none":
		return control.NewNone(), nil
	default:
		return nil, dynamo.Invalid("unknown controller %q", c.Controller.Type)
	}
}

// NewLoop builds the control loop with the default metric set attached.
func (c *Config) NewLoop() (*loop.Loop, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	order, ff, fb, err := c.FilterSpec()
	if err != nil {
		return nil, err
	}
	bank, err := filter.NewBank(c.Joints(), order, ff, fb)
	if err != nil {
		return nil, err
	}
	offsets, err := c.Offsets()
	if err != nil {
		return nil, err
	}
	enabled, err := c.GravityCompensation()
	if err != nil {
		return nil, err
	}
	kalman, err := estimator.NewKalmanWith(c.Kalman)
	if err != nil {
		return nil, err
	}
	ctrl, err := c.NewController()
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"joints":       c.Joints(),
		"filter_order": order,
		"feedforward":  ff,
		"feedback":     fb,
	}).Info("torque filter")
	log.WithFields(log.Fields{
		"offsets":              offsets,
		"gravity_compensation": enabled,
	}).Info("torque compensation")

	l, err := loop.New(bank, gravity.NewCompensator(offsets, enabled), kalman, ctrl, loop.Config{
		Dt:         c.Dt,
		Ticks:      c.Ticks,
		DebugLevel: c.DebugLevel,
		Realtime:   c.Realtime,
		Record:     c.Ticks > 0,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range metrics.Default(c.CommandLimit) {
		l.AddMetric(m)
	}
	return l, nil
}

func (c *Config) NewFeed() (*plant.Feed, error) {
	return plant.NewFeed(c.Plant, c.Dt, c.Seed)
}

// LogLevel returns the logger level a run of this config needs: debug when
// the loop trace is on, current otherwise.
func (c *Config) LogLevel(current log.Level) log.Level {
	if c.DebugLevel > 0 && current < log.DebugLevel {
		return log.DebugLevel
	}
	return current
}

// fixedFilter reports which setting pins the filter coefficients, or "" when
// they come from the Butterworth design.
func (c *Config) fixedFilter() string {
	if _, ok := c.Properties[PropFilterParams]; ok {
		return PropFilterParams + " property"
	}
	if len(c.Filter.Feedforward) > 0 || len(c.Filter.Feedback) > 0 {
		return "explicit filter coefficients"
	}
	return ""
}

// Tuned returns a copy with named parameters overridden: ke, tc, range,
// q_angle, q_rate, r_angle, cutoff_hz and order. cutoff_hz and order are
// rejected when the coefficients are fixed, since the design would be
// ignored.
func (c *Config) Tuned(params map[string]float64) (*Config, error) {
	t := c.clone()
	for name, v := range params {
		if name == "cutoff_hz" || name == "order" {
			if fixed := c.fixedFilter(); fixed != "" {
				return nil, dynamo.Invalid("cannot tune %s: filter is fixed by the %s", name, fixed)
			}
		}
		switch name {
		case "ke":
			t.Controller.Ke = v
		case "tc":
			t.Controller.Tc = v
		case "range":
			t.Controller.Range = v
		case "q_angle":
			t.Kalman.QAngle = v
		case "q_rate":
			t.Kalman.QRate = v
		case "r_angle":
			t.Kalman.RAngle = v
		case "cutoff_hz":
			t.Filter.CutoffHz = v
		case "order":
			t.Filter.Order = int(v)
		default:
			return nil, dynamo.Invalid("unknown tuning parameter %q", name)
		}
	}
	return t, nil
}
