package config

import "sort"

// Presets adjust the default configuration for common tuning sessions.
var Presets = map[string]func(*Config){
	"nominal": func(c *Config) {},
	"aggressive": func(c *Config) {
		c.Controller.MaxFinRateDeg = 30
		c.Controller.MaxFinAngleDeg = 15
		c.Controller.Gains.Kp = 0.2
		c.Controller.Gains.Kd = 0.05
		c.Tuning.AlphaKp = 5e-4
		c.Tuning.AlphaKd = -5e-4
	},
	"gentle": func(c *Config) {
		c.Controller.SetpointDeg = 90
		c.Controller.Gains.Ki = 0.05
		c.Tuning.MaxStep = 0.01
		c.Loop.Iterations = 20
		c.Loop.SnapshotEvery = 5
	},
}

// GetPreset returns a fresh configuration for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
