package epidemic

import (
	"fmt"
	"math"

	"github.com/myth/coroner/internal/dynamo"
)

// Compartment indices in a normalized SIR state.
const (
	Susceptible = iota
	Infectious
	Removed
)

type SIR struct {
	Beta  float64 // transmission rate
	Gamma float64 // recovery rate, 1 / mean infectious period in days
}

func NewSIR(beta, gamma float64) *SIR {
	return &SIR{Beta: beta, Gamma: gamma}
}

func (m *SIR) StateDim() int {
	return 3
}

// Derive returns (ds, di, dr). di is taken as the negated sum of the other
// two rates so that ds + dr + di is exactly zero.
func (m *SIR) Derive(x dynamo.State, t float64) dynamo.State {
	s := x[Susceptible]
	i := x[Infectious]

	ds := -m.Beta * s * i
	dr := m.Gamma * i
	di := -(ds + dr)

	return dynamo.State{ds, di, dr}
}

// R0 is the basic reproduction number beta / gamma.
func (m *SIR) R0() float64 {
	if m.Gamma == 0 {
		return math.Inf(1)
	}
	return m.Beta / m.Gamma
}

func (m *SIR) Params() map[string]float64 {
	return map[string]float64{
		"beta":  m.Beta,
		"gamma": m.Gamma,
	}
}

func (m *SIR) SetParam(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %s=%v", dynamo.ErrParameterBounds, name, value)
	}
	switch name {
	case "beta":
		m.Beta = value
	case "gamma":
		if value == 0 {
			return fmt.Errorf("%w: gamma must be positive", dynamo.ErrParameterBounds)
		}
		m.Gamma = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
