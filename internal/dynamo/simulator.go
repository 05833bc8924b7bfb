package dynamo

import "fmt"

// Simulator steps a System at a fixed unit step and reports every sample to an Observer.
type Simulator struct {
	sys        System
	integrator Integrator
	dt         float64
	substeps   int
}

func New(sys System, integrator Integrator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		dt:         1.0,
		substeps:   1,
	}
}

// WithSubsteps splits every unit step into n equal integrator steps. The
// observer still sees one sample per unit step.
func (s *Simulator) WithSubsteps(n int) *Simulator {
	if n > 0 {
		s.substeps = n
	}
	return s
}

// Run integrates x0 for steps unit steps. obs sees the initial state as
// step 0 and then each completed step, so it is called steps+1 times on
// success. Integration stops at the first state containing NaN or Inf.
func (s *Simulator) Run(x0 State, steps int, obs Observer) error {
	if err := s.validate(x0, steps); err != nil {
		return err
	}

	x := x0.Clone()
	h := s.dt / float64(s.substeps)

	if obs != nil {
		obs.OnStep(0, x.Clone())
	}

	for i := 1; i <= steps; i++ {
		start := float64(i-1) * s.dt
		for j := 0; j < s.substeps; j++ {
			t := start + float64(j)*h
			next := s.integrator.Step(s.sys, x, t, h)

			if !next.IsValid() {
				return &SimulationError{Step: i, Time: t + h, State: next, Wrapped: ErrInvalidState}
			}
			x = next
		}

		if obs != nil {
			obs.OnStep(i, x.Clone())
		}
	}

	return nil
}

func (s *Simulator) validate(x0 State, steps int) error {
	if steps < 0 {
		return fmt.Errorf("%w, got %d", ErrNegativeSteps, steps)
	}
	if len(x0) != s.sys.StateDim() {
		return fmt.Errorf("%w: state has %d components, system expects %d", ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	if !x0.IsValid() {
		return &SimulationError{Step: 0, Time: 0, State: x0.Clone(), Wrapped: ErrInvalidState}
	}
	return nil
}
