package lab

import (
	"encoding/json"
	"math"
)

// Trajectory is one solved run: a sample per day from 0 to the horizon,
// in population counts. It is never modified after Recompute returns it;
// accessors hand out copies.
type Trajectory struct {
	params      Params
	norm        Normalization
	base        float64
	generation  uint64
	drift       float64
	susceptible []float64
	infectious  []float64
	removed     []float64
}

// Sample is one day of a trajectory.
type Sample struct {
	Day         int     `json:"day"`
	Susceptible float64 `json:"susceptible"`
	Infectious  float64 `json:"infectious"`
	Removed     float64 `json:"removed"`
}

func newTrajectory(p Params, norm Normalization, base float64, generation uint64) *Trajectory {
	n := p.HorizonDays + 1
	return &Trajectory{
		params:      p,
		norm:        norm,
		base:        base,
		generation:  generation,
		susceptible: make([]float64, n),
		infectious:  make([]float64, n),
		removed:     make([]float64, n),
	}
}

func (t *Trajectory) Params() Params               { return t.params }
func (t *Trajectory) Normalization() Normalization { return t.norm }

// Base is the population the normalized state was scaled by.
func (t *Trajectory) Base() float64 { return t.base }

// Generation orders trajectories by when their recompute started.
func (t *Trajectory) Generation() uint64 { return t.generation }

// Drift is the largest deviation of the normalized compartment sum from
// its day-0 value over the run.
func (t *Trajectory) Drift() float64 { return t.drift }

// Len is the number of samples, horizon + 1.
func (t *Trajectory) Len() int { return len(t.susceptible) }

func (t *Trajectory) Days() []int {
	days := make([]int, t.Len())
	for i := range days {
		days[i] = i
	}
	return days
}

func (t *Trajectory) Susceptible() []float64 { return cloneSeries(t.susceptible) }
func (t *Trajectory) Infectious() []float64  { return cloneSeries(t.infectious) }
func (t *Trajectory) Removed() []float64     { return cloneSeries(t.removed) }

// At returns the sample for day, or false when day is outside the horizon.
func (t *Trajectory) At(day int) (Sample, bool) {
	if day < 0 || day >= t.Len() {
		return Sample{}, false
	}
	return Sample{
		Day:         day,
		Susceptible: t.susceptible[day],
		Infectious:  t.infectious[day],
		Removed:     t.removed[day],
	}, true
}

func (t *Trajectory) Samples() []Sample {
	out := make([]Sample, t.Len())
	for d := range out {
		out[d], _ = t.At(d)
	}
	return out
}

// Summary holds the headline figures a dashboard shows next to the curves.
type Summary struct {
	PeakDay          int     `json:"peak_day"`
	PeakInfectious   float64 `json:"peak_infectious"`
	FinalSusceptible float64 `json:"final_susceptible"`
	FinalInfectious  float64 `json:"final_infectious"`
	FinalRemoved     float64 `json:"final_removed"`
	AttackRate       float64 `json:"attack_rate"`
	R0               float64 `json:"r0"`
}

func (t *Trajectory) Summary() Summary {
	last := t.Len() - 1
	s := Summary{
		PeakInfectious:   math.Inf(-1),
		FinalSusceptible: t.susceptible[last],
		FinalInfectious:  t.infectious[last],
		FinalRemoved:     t.removed[last],
		R0:               t.params.R0(),
	}
	for d, v := range t.infectious {
		if v > s.PeakInfectious {
			s.PeakDay, s.PeakInfectious = d, v
		}
	}
	if s0 := t.susceptible[0]; s0 > 0 {
		s.AttackRate = (s0 - t.susceptible[last]) / s0
	}
	return s
}

type trajectoryJSON struct {
	Population         int       `json:"population"`
	InitialInfectious  int       `json:"initial_infectious"`
	InitialRemoved     int       `json:"initial_removed"`
	TransmissionRate   float64   `json:"beta"`
	RecoveryPeriodDays int       `json:"recovery_days"`
	HorizonDays        int       `json:"horizon"`
	Normalization      string    `json:"normalization"`
	Base               float64   `json:"base"`
	Days               []int     `json:"days"`
	Susceptible        []float64 `json:"susceptible"`
	Infectious         []float64 `json:"infectious"`
	Removed            []float64 `json:"removed"`
	Summary            Summary   `json:"summary"`
}

// MarshalJSON emits the three series as parallel arrays keyed by day.
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	return json.Marshal(trajectoryJSON{
		Population:         t.params.TotalCount,
		InitialInfectious:  t.params.InitialInfectious,
		InitialRemoved:     t.params.InitialRemoved,
		TransmissionRate:   t.params.TransmissionRate,
		RecoveryPeriodDays: t.params.RecoveryPeriodDays,
		HorizonDays:        t.params.HorizonDays,
		Normalization:      string(t.norm),
		Base:               t.base,
		Days:               t.Days(),
		Susceptible:        t.susceptible,
		Infectious:         t.infectious,
		Removed:            t.removed,
		Summary:            t.Summary(),
	})
}

func cloneSeries(s []float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	return c
}
