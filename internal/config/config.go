package config

import (
	"fmt"
	"os"

	"github.com/myth/coroner/internal/integrators"
	"github.com/myth/coroner/internal/lab"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPopulation   = 5367580
	DefaultHorizon      = 180
	DefaultInfectious   = 100
	DefaultBeta         = 0.3
	DefaultRecoveryDays = 10
)

type Config struct {
	Population    int       `yaml:"population"`
	Horizon       int       `yaml:"horizon"`
	Integrator    string    `yaml:"integrator"`
	Normalization string    `yaml:"normalization"`
	Lab           LabConfig `yaml:"lab"`
}

// LabConfig holds the editable starting values.
type LabConfig struct {
	Infectious   int     `yaml:"infectious"`
	Removed      int     `yaml:"removed"`
	Beta         float64 `yaml:"beta"`
	RecoveryDays int     `yaml:"recovery_days"`
}

func DefaultConfig() *Config {
	return &Config{
		Population:    DefaultPopulation,
		Horizon:       DefaultHorizon,
		Integrator:    integrators.Default,
		Normalization: string(lab.NormalizeTotal),
		Lab: LabConfig{
			Infectious:   DefaultInfectious,
			Beta:         DefaultBeta,
			RecoveryDays: DefaultRecoveryDays,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig, so omitted keys keep
// their defaults.
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

func (c *Config) Params() lab.Params {
	return lab.Params{
		TotalCount:         c.Population,
		InitialInfectious:  c.Lab.Infectious,
		InitialRemoved:     c.Lab.Removed,
		TransmissionRate:   c.Lab.Beta,
		RecoveryPeriodDays: c.Lab.RecoveryDays,
		HorizonDays:        c.Horizon,
	}
}

func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if _, err := integrators.New(c.Integrator); err != nil {
		return err
	}
	if _, err := lab.ParseNormalization(c.Normalization); err != nil {
		return err
	}
	return nil
}

// Options translates the non-parameter settings into controller options.
func (c *Config) Options() ([]lab.Option, error) {
	factory, err := lab.IntegratorByName(c.Integrator)
	if err != nil {
		return nil, err
	}
	norm, err := lab.ParseNormalization(c.Normalization)
	if err != nil {
		return nil, err
	}
	return []lab.Option{lab.WithIntegrator(factory), lab.WithNormalization(norm)}, nil
}
