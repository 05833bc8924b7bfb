// Package lab is the interactive epidemic simulator behind the dashboard.
//
// A [Controller] owns the current [Params], validates edits, and solves the
// SIR model on demand:
//
//	c, err := lab.New(lab.Params{
//	    TotalCount: 1000, InitialInfectious: 10,
//	    TransmissionRate: 0.3, RecoveryPeriodDays: 10, HorizonDays: 30,
//	})
//	if err := c.SetParameter(lab.ParamBeta, 0.4); err != nil {
//	    // rejected; previous parameters and trajectory are still in place
//	}
//	traj, err := c.Recompute()
//
// Counts are normalized to fractions of the population before integration
// and scaled back afterwards. Each [Trajectory] holds one sample per day
// from 0 to the horizon and is never modified once returned.
package lab
