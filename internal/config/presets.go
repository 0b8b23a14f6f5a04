package config

import (
	"sort"

	"github.com/san-kum/jointctl/internal/plant"
)

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

func leg3(c *Config) {
	c.Robot = "leg3"
	c.Plant.Links = []plant.Link{{Mass: 4.0, Length: 0.35}, {Mass: 2.5, Length: 0.35}, {Mass: 0.8, Length: 0.12}}
	c.Plant.Offsets = []float64{0.3, -0.2, 0.05}
	c.TorqueOffset = []float64{0.3, -0.2, 0.05}
}

func single(c *Config) {
	c.Robot = "single"
	c.Plant.Links = []plant.Link{{Mass: 1.0, Length: 0.5}}
	c.Plant.Offsets = []float64{0.1}
	c.TorqueOffset = []float64{0.1}
}

var Presets = map[string]map[string]*Config{
	"arm2": {
		"default": DefaultConfig(),
		"raw": preset(func(c *Config) {
			c.Compensate = false
		}),
		"smooth": preset(func(c *Config) {
			c.Filter = FilterConfig{Order: 4, CutoffHz: 2}
		}),
		"octave": preset(func(c *Config) {
			// butter(2, 5/200) from octave, in the legacy property layout
			c.Properties = map[string]string{
				PropFilterParams: "2, 1.0, 1.88903, -0.89487, 0.0014603, 0.0029206, 0.0014603",
			}
		}),
		"aggressive": preset(func(c *Config) {
			c.Controller = ControllerConfig{Type: "twodof", Ke: 20, Tc: 0.01, Range: 3}
		}),
	},
	"leg3": {
		"stance": preset(func(c *Config) {
			leg3(c)
			c.Plant.Amplitude = 0.15
		}),
		"swing": preset(func(c *Config) {
			leg3(c)
			c.Plant.Amplitude = 0.6
			c.Plant.Frequency = 1.2
			c.Filter = FilterConfig{Order: 3, CutoffHz: 8}
		}),
	},
	"single": {
		"bench": preset(single),
		"noisy_imu": preset(func(c *Config) {
			single(c)
			c.Plant.GyroNoise = 0.3
			c.Plant.AccelNoise = 0.2
			c.Plant.GyroBias = 0.1
		}),
		"trusting": preset(func(c *Config) {
			single(c)
			c.Kalman.RAngle = 0
		}),
	},
}

// GetPreset returns a copy of a named preset, or nil.
func GetPreset(robot, name string) *Config {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	cfg, ok := robotPresets[name]
	if !ok {
		return nil
	}
	return cfg.clone()
}

func ListPresets(robot string) []string {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(robotPresets))
	for name := range robotPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListRobots() []string {
	robots := make([]string, 0, len(Presets))
	for r := range Presets {
		robots = append(robots, r)
	}
	sort.Strings(robots)
	return robots
}
