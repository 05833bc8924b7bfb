package integrators

import "github.com/myth/coroner/internal/dynamo"

// Euler is first order. It is kept for comparison runs; the exponential
// growth phase of an outbreak shows visible error with it at one-day steps.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys dynamo.System, x dynamo.State, t float64, dt float64) dynamo.State {
	dx := sys.Derive(x, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
