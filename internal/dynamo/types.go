package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Sum adds the components left to right.
func (s State) Sum() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum
}

// System is an autonomous or time-dependent ODE dX/dt = f(X, t).
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, t float64, dt float64) State
}

// Observer receives one sample per completed step.
type Observer interface {
	OnStep(step int, x State)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(step int, x State)

func (f ObserverFunc) OnStep(step int, x State) { f(step, x) }

type Configurable interface {
	Params() map[string]float64
	SetParam(name string, value float64) error
}
