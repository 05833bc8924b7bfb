package config

import "sort"

var Presets = map[string]*Config{
	"reference": {
		Population: 1000, Horizon: 30, Integrator: "rk4", Normalization: "total",
		Lab: LabConfig{Infectious: 10, Beta: 0.3, RecoveryDays: 10},
	},
	"norway": {
		Population: DefaultPopulation, Horizon: DefaultHorizon, Integrator: "rk4", Normalization: "total",
		Lab: LabConfig{Infectious: DefaultInfectious, Beta: DefaultBeta, RecoveryDays: DefaultRecoveryDays},
	},
	"fast": {
		Population: DefaultPopulation, Horizon: 120, Integrator: "rk4", Normalization: "total",
		Lab: LabConfig{Infectious: 500, Beta: 0.5, RecoveryDays: 7},
	},
	"contained": {
		Population: DefaultPopulation, Horizon: 120, Integrator: "rk4", Normalization: "total",
		Lab: LabConfig{Infectious: 1000, Beta: 0, RecoveryDays: 10},
	},
	"immune": {
		Population: 100000, Horizon: 365, Integrator: "rk4", Normalization: "total",
		Lab: LabConfig{Infectious: 50, Removed: 60000, Beta: 0.3, RecoveryDays: 10},
	},
	"legacy": {
		Population: DefaultPopulation, Horizon: DefaultHorizon, Integrator: "rk4", Normalization: "exclude-removed",
		Lab: LabConfig{Infectious: DefaultInfectious, Beta: DefaultBeta, RecoveryDays: DefaultRecoveryDays},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
