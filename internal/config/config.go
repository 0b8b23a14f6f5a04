package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/plant"
)

const (
	DefaultDt           = 0.005
	DefaultTicks        = 2000
	DefaultOrder        = 2
	DefaultCutoffHz     = 5.0
	DefaultKe           = 4.0
	DefaultTc           = 0.05
	DefaultRange        = 5.0
	DefaultCommandLimit = 20.0
	DefaultAddr         = ":8080"
)

type Config struct {
	Robot        string            `yaml:"robot"`
	Dt           float64           `yaml:"dt"`
	Ticks        int               `yaml:"ticks"`
	Seed         int64             `yaml:"seed"`
	DebugLevel   int               `yaml:"debug_level"`
	Realtime     bool              `yaml:"realtime"`
	Properties   map[string]string `yaml:"properties,omitempty"`
	Filter       FilterConfig      `yaml:"filter"`
	TorqueOffset []float64         `yaml:"torque_offset,omitempty"`
	Compensate   bool              `yaml:"gravity_compensation"`
	Kalman       estimator.Params  `yaml:"kalman"`
	Controller   ControllerConfig  `yaml:"controller"`
	CommandLimit float64           `yaml:"command_limit"`
	Plant        plant.Params      `yaml:"plant"`
	Server       ServerConfig      `yaml:"server"`
}

// FilterConfig selects the torque filter when no torque_filter_params
// property is set: explicit coefficients win over a Butterworth design.
type FilterConfig struct {
	Order       int       `yaml:"order"`
	CutoffHz    float64   `yaml:"cutoff_hz"`
	Feedforward []float64 `yaml:"feedforward,omitempty"`
	Feedback    []float64 `yaml:"feedback,omitempty"`
}

type ControllerConfig struct {
	Type  string  `yaml:"type"` // twodof or none
	Ke    float64 `yaml:"ke"`
	Tc    float64 `yaml:"tc"`
	Range float64 `yaml:"range"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func DefaultConfig() *Config {
	p := plant.DefaultParams()
	return &Config{
		Robot: "arm2",
		Dt:    DefaultDt,
		Ticks: DefaultTicks,
		Seed:  1,
		Filter: FilterConfig{
			Order:    DefaultOrder,
			CutoffHz: DefaultCutoffHz,
		},
		TorqueOffset: append([]float64(nil), p.Offsets...),
		Compensate:   true,
		Kalman:       estimator.DefaultParams(),
		Controller: ControllerConfig{
			Type:  "twodof",
			Ke:    DefaultKe,
			Tc:    DefaultTc,
			Range: DefaultRange,
		},
		CommandLimit: DefaultCommandLimit,
		Plant:        p,
		Server:       ServerConfig{Addr: DefaultAddr},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Joints is the configured joint count, one per plant link.
func (c *Config) Joints() int { return len(c.Plant.Links) }

// Validate applies the dt and debug_level properties and checks every
// property string, so malformed values fail before a loop is built.
func (c *Config) Validate() error {
	if s, ok := c.Properties[PropDt]; ok {
		dt, err := parseFloat(PropDt, s)
		if err != nil {
			return err
		}
		c.Dt = dt
	}
	if s, ok := c.Properties[PropDebugLevel]; ok {
		lvl, err := parseInt(PropDebugLevel, s)
		if err != nil {
			return err
		}
		c.DebugLevel = lvl
	}

	if c.Dt <= 0 || !dynamo.IsFinite(c.Dt) {
		return dynamo.Invalid("dt must be positive, got %g", c.Dt)
	}
	if c.Ticks < 0 {
		return dynamo.Invalid("ticks must be non-negative, got %d", c.Ticks)
	}
	if c.Joints() == 0 {
		return dynamo.Invalid("plant needs at least one link")
	}
	if _, _, _, err := c.FilterSpec(); err != nil {
		return err
	}
	if _, err := c.Offsets(); err != nil {
		return err
	}
	if _, err := c.GravityCompensation(); err != nil {
		return err
	}
	return c.Kalman.Validate()
}

func (c *Config) clone() *Config {
	cp := *c
	if c.Properties != nil {
		cp.Properties = make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			cp.Properties[k] = v
		}
	}
	cp.Filter.Feedforward = append([]float64(nil), c.Filter.Feedforward...)
	cp.Filter.Feedback = append([]float64(nil), c.Filter.Feedback...)
	cp.TorqueOffset = append([]float64(nil), c.TorqueOffset...)
	cp.Plant.Links = append([]plant.Link(nil), c.Plant.Links...)
	cp.Plant.Offsets = append([]float64(nil), c.Plant.Offsets...)
	return &cp
}
