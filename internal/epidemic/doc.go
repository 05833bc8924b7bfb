// Package epidemic provides compartmental epidemic models for the lab.
//
// Each model implements the [dynamo.System] interface over a normalized
// state, where every compartment is a fraction of the reference population:
//
//   - [SIR]: Susceptible, Infectious, Removed
//
// Models also implement [dynamo.Configurable] so the rates can be adjusted
// between runs.
//
// # Conservation
//
// The SIR derivative is built so the compartment rates cancel exactly in
// floating point. Integrating it never creates or destroys population:
//
//	sys := epidemic.NewSIR(0.3, 0.1)
//	dx := sys.Derive(dynamo.State{0.99, 0.01, 0}, 0)
//	// (dx[0] + dx[2]) + dx[1] == 0
package epidemic
