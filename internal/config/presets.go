package config

import "sort"

// Presets tweak the default configuration per environment.
var Presets = map[string]map[string]func(*Config){
	"BeamTraining": {
		"small": func(c *Config) {
			c.Scene.Cells = [3]int{4, 1, 1}
			c.Scene.Spacing = 0.5
			c.Session.MaxSteps = 200
		},
		"fine": func(c *Config) {
			c.Scene.Cells = [3]int{16, 4, 4}
			c.Scene.Spacing = 0.125
			c.Scene.Substeps = 4
		},
		"multi": func(c *Config) {
			c.Scene.ForceFields = 3
			c.Scene.ForcePeriod = 20
		},
	},
	"BeamGridTraining": {
		"small": func(c *Config) {
			c.Scene.Cells = [3]int{4, 1, 1}
			c.Scene.Spacing = 0.5
			c.Scene.GridMargin = 1
			c.Session.MaxSteps = 200
		},
		"tight": func(c *Config) {
			c.Scene.GridMargin = 0
		},
		"unset-aware": func(c *Config) {
			c.Session.Encoding = "first-set"
			c.Scene.ForceFields = 2
		},
	},
	"BeamPrediction": {
		"echo": func(c *Config) {
			c.Server.Predictor = "echo"
		},
	},
}

// GetPreset returns the defaults with the preset applied, or nil.
func GetPreset(env, preset string) *Config {
	envPresets, ok := Presets[env]
	if !ok {
		return nil
	}
	apply, ok := envPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets(env string) []string {
	envPresets, ok := Presets[env]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(envPresets))
	for name := range envPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
