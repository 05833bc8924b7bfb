package lab

import (
	"fmt"
	"math"
	"strconv"

	"github.com/myth/coroner/internal/dynamo"
	"github.com/myth/coroner/internal/epidemic"
)

// Editable parameter names.
const (
	ParamPopulation   = "population"
	ParamInfectious   = "infectious"
	ParamRemoved      = "removed"
	ParamBeta         = "beta"
	ParamRecoveryDays = "recovery_days"
	ParamHorizon      = "horizon"
)

// largest integer a float64 carries exactly
const maxCount float64 = 1 << 53

// MaxTransmissionRate is the largest accepted beta, in contacts per day.
// Recompute splits each day into more integrator steps as beta grows, and
// this bound keeps that count small.
const MaxTransmissionRate = 100.0

// Params is the complete input of one simulation. It is a value type: the
// controller replaces its copy on every accepted edit.
type Params struct {
	TotalCount         int
	InitialInfectious  int
	InitialRemoved     int
	TransmissionRate   float64
	RecoveryPeriodDays int
	HorizonDays        int
}

// Gamma is the recovery rate, the reciprocal of the recovery period.
func (p Params) Gamma() float64 {
	return 1 / float64(p.RecoveryPeriodDays)
}

func (p Params) R0() float64 {
	return epidemic.NewSIR(p.TransmissionRate, p.Gamma()).R0()
}

// Validate reports the first constraint p violates.
func (p Params) Validate() error {
	switch {
	case p.TotalCount <= 0:
		return invalid(ParamPopulation, strconv.Itoa(p.TotalCount), "must be positive")
	case float64(p.TotalCount) > maxCount:
		return invalid(ParamPopulation, strconv.Itoa(p.TotalCount), "too large")
	case p.InitialInfectious < 0:
		return invalid(ParamInfectious, strconv.Itoa(p.InitialInfectious), "must not be negative")
	case p.InitialRemoved < 0:
		return invalid(ParamRemoved, strconv.Itoa(p.InitialRemoved), "must not be negative")
	case p.InitialInfectious > p.TotalCount-p.InitialRemoved:
		return invalid(ParamInfectious, strconv.Itoa(p.InitialInfectious),
			fmt.Sprintf("infectious + removed (%d) exceeds population %d", p.InitialInfectious+p.InitialRemoved, p.TotalCount))
	case math.IsNaN(p.TransmissionRate) || math.IsInf(p.TransmissionRate, 0):
		return invalid(ParamBeta, formatFloat(p.TransmissionRate), "must be finite")
	case p.TransmissionRate < 0:
		return invalid(ParamBeta, formatFloat(p.TransmissionRate), "must not be negative")
	case p.TransmissionRate > MaxTransmissionRate:
		return invalid(ParamBeta, formatFloat(p.TransmissionRate), fmt.Sprintf("must not exceed %g per day", MaxTransmissionRate))
	case p.RecoveryPeriodDays < 1:
		return invalid(ParamRecoveryDays, strconv.Itoa(p.RecoveryPeriodDays), "must be at least 1 day")
	case p.HorizonDays < 0:
		return invalid(ParamHorizon, strconv.Itoa(p.HorizonDays), "must not be negative")
	}
	return nil
}

// with returns a copy of p with the named field set to value.
func (p Params) with(name string, value float64) (Params, error) {
	if name == ParamBeta {
		p.TransmissionRate = value
		return p, nil
	}

	var field *int
	switch name {
	case ParamPopulation:
		field = &p.TotalCount
	case ParamInfectious:
		field = &p.InitialInfectious
	case ParamRemoved:
		field = &p.InitialRemoved
	case ParamRecoveryDays:
		field = &p.RecoveryPeriodDays
	case ParamHorizon:
		return p, invalid(name, formatFloat(value), "fixed for the session")
	default:
		return p, &ParameterError{Name: name, Value: formatFloat(value), Reason: "not a lab parameter", Err: ErrUnknownParameter}
	}

	n, err := toCount(name, value)
	if err != nil {
		return p, err
	}
	*field = n
	return p, nil
}

func toCount(name string, value float64) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, invalid(name, formatFloat(value), "must be finite")
	}
	if value != math.Trunc(value) {
		return 0, invalid(name, formatFloat(value), "must be a whole number")
	}
	if math.Abs(value) > maxCount {
		return 0, invalid(name, formatFloat(value), "too large")
	}
	return int(value), nil
}

func invalid(name, value, reason string) error {
	return &ParameterError{Name: name, Value: value, Reason: reason, Err: ErrInvalidParameter}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Normalization selects the population base that counts are divided by.
type Normalization string

const (
	// NormalizeTotal divides by the reference population. Susceptible
	// starts at population - infectious - removed and s+i+r = 1.
	NormalizeTotal Normalization = "total"

	// NormalizeExcludeRemoved reproduces the legacy dashboard: susceptible
	// starts at population - infectious, the base is susceptible +
	// infectious, and removed is scaled by that base. s+i+r exceeds 1
	// whenever removed is non-zero.
	NormalizeExcludeRemoved Normalization = "exclude-removed"
)

func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(s) {
	case NormalizeTotal, "":
		return NormalizeTotal, nil
	case NormalizeExcludeRemoved:
		return NormalizeExcludeRemoved, nil
	}
	return "", fmt.Errorf("unknown normalization %q (want %q or %q)", s, NormalizeTotal, NormalizeExcludeRemoved)
}

// initialState returns the normalization base and the normalized day-0 state.
func (p Params) initialState(norm Normalization) (float64, dynamo.State) {
	infectious := float64(p.InitialInfectious)
	removed := float64(p.InitialRemoved)

	var susceptible float64
	if norm == NormalizeExcludeRemoved {
		susceptible = float64(p.TotalCount - p.InitialInfectious)
	} else {
		susceptible = float64(p.TotalCount - p.InitialInfectious - p.InitialRemoved)
	}

	base := float64(p.TotalCount)
	if norm == NormalizeExcludeRemoved {
		base = susceptible + infectious
	}

	return base, dynamo.State{susceptible / base, infectious / base, removed / base}
}

// ParameterInfo describes one parameter for an input form.
type ParameterInfo struct {
	Name        string
	Description string
	Kind        string // "int" or "float"
	Value       float64
	Editable    bool
}

func (p Params) Describe() []ParameterInfo {
	return []ParameterInfo{
		{Name: ParamInfectious, Description: "Initially infectious individuals", Kind: "int", Value: float64(p.InitialInfectious), Editable: true},
		{Name: ParamRemoved, Description: "Initially removed individuals", Kind: "int", Value: float64(p.InitialRemoved), Editable: true},
		{Name: ParamBeta, Description: "Transmission rate (beta)", Kind: "float", Value: p.TransmissionRate, Editable: true},
		{Name: ParamRecoveryDays, Description: "Mean recovery period in days (1/gamma)", Kind: "int", Value: float64(p.RecoveryPeriodDays), Editable: true},
		{Name: ParamPopulation, Description: "Reference population", Kind: "int", Value: float64(p.TotalCount), Editable: true},
		{Name: ParamHorizon, Description: "Days simulated", Kind: "int", Value: float64(p.HorizonDays), Editable: false},
	}
}
