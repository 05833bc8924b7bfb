// Package dynamo provides the simulation primitives shared by the lab.
//
// The package defines the interfaces and types for fixed-step numerical
// integration of ordinary differential equations:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Integrator]: single fixed-step advance of a [System]
//   - [Observer]: dense-output hook receiving every completed step
//   - [Simulator]: drives an integrator over a number of unit steps
//
// # Example
//
//	sys := epidemic.NewSIR(0.3, 0.1)
//	s := dynamo.New(sys, integrators.NewRK4())
//	err := s.Run(x0, 30, dynamo.ObserverFunc(func(day int, x dynamo.State) {
//	    // record x for day
//	}))
//
// # Thread Safety
//
// Simulator and the stateful integrators (RK4 keeps scratch buffers) are NOT
// thread-safe. Build one per goroutine.
package dynamo
