package lab_test

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/myth/coroner/internal/dynamo"
	"github.com/myth/coroner/internal/integrators"
	"github.com/myth/coroner/internal/lab"
)

func scenario() lab.Params {
	return lab.Params{
		TotalCount:         1000,
		InitialInfectious:  10,
		InitialRemoved:     0,
		TransmissionRate:   0.3,
		RecoveryPeriodDays: 10,
		HorizonDays:        30,
	}
}

func mustController(p lab.Params, opts ...lab.Option) *lab.Controller {
	c, err := lab.New(p, opts...)
	Expect(err).NotTo(HaveOccurred())
	return c
}

func mustRecompute(c *lab.Controller) *lab.Trajectory {
	traj, err := c.Recompute()
	Expect(err).NotTo(HaveOccurred())
	return traj
}

type recordingObserver struct {
	mu       sync.Mutex
	elapsed  []time.Duration
	faults   int
	rejected []string
}

func (r *recordingObserver) OnRecompute(elapsed time.Duration, _ *lab.Trajectory, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed = append(r.elapsed, elapsed)
	if err != nil {
		r.faults++
	}
}

func (r *recordingObserver) OnRejected(name string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, name)
}

var _ = Describe("Controller", func() {
	Describe("the reference outbreak", func() {
		var traj *lab.Trajectory

		BeforeEach(func() {
			traj = mustRecompute(mustController(scenario()))
		})

		It("samples every day of the horizon", func() {
			Expect(traj.Len()).To(Equal(31))
			Expect(traj.Days()).To(HaveLen(31))
			Expect(traj.Days()[30]).To(Equal(30))
			Expect(traj.Susceptible()).To(HaveLen(31))
			Expect(traj.Infectious()).To(HaveLen(31))
			Expect(traj.Removed()).To(HaveLen(31))
		})

		It("starts at (990, 10, 0)", func() {
			day0, ok := traj.At(0)
			Expect(ok).To(BeTrue())
			Expect(day0.Susceptible).To(BeNumerically("~", 990, 1e-9))
			Expect(day0.Infectious).To(BeNumerically("~", 10, 1e-9))
			Expect(day0.Removed).To(BeNumerically("~", 0, 1e-9))
		})

		It("conserves the population every day", func() {
			for _, s := range traj.Samples() {
				total := s.Susceptible + s.Infectious + s.Removed
				Expect(math.Abs(total-1000)/1000).To(BeNumerically("<", 1e-9), "day %d", s.Day)
			}
		})

		It("has susceptible falling and removed rising below the population", func() {
			S, R := traj.Susceptible(), traj.Removed()
			for d := 1; d < traj.Len(); d++ {
				Expect(S[d]).To(BeNumerically("<", S[d-1]), "susceptible on day %d", d)
				Expect(R[d]).To(BeNumerically(">", R[d-1]), "removed on day %d", d)
			}
			Expect(R[30]).To(BeNumerically("<", 1000))
		})

		It("has a single infectious peak inside the horizon", func() {
			I := traj.Infectious()
			sum := traj.Summary()
			Expect(sum.PeakDay).To(BeNumerically(">", 0))
			Expect(sum.PeakDay).To(BeNumerically("<", 30))
			for d := 1; d <= sum.PeakDay; d++ {
				Expect(I[d]).To(BeNumerically(">=", I[d-1]), "rising on day %d", d)
			}
			for d := sum.PeakDay + 1; d < len(I); d++ {
				Expect(I[d]).To(BeNumerically("<=", I[d-1]), "falling on day %d", d)
			}
			Expect(sum.PeakInfectious).To(BeNumerically(">", 10))
			Expect(sum.R0).To(BeNumerically("~", 3, 1e-12))
		})

		It("reports its inputs", func() {
			Expect(traj.Params()).To(Equal(scenario()))
			Expect(traj.Base()).To(Equal(1000.0))
			Expect(traj.Normalization()).To(Equal(lab.NormalizeTotal))
		})
	})

	DescribeTable("conservation and monotonicity",
		func(p lab.Params) {
			traj := mustRecompute(mustController(p))
			S, I, R := traj.Susceptible(), traj.Infectious(), traj.Removed()
			base := float64(p.TotalCount)
			for d := 0; d < traj.Len(); d++ {
				Expect(math.Abs(S[d]+I[d]+R[d]-base)/base).To(BeNumerically("<", 1e-9), "day %d", d)
				Expect(S[d]).To(BeNumerically(">=", 0), "susceptible day %d", d)
				Expect(I[d]).To(BeNumerically(">=", -1e-9*base), "infectious day %d", d)
				if d > 0 {
					Expect(S[d]).To(BeNumerically("<=", S[d-1]), "susceptible day %d", d)
					Expect(R[d]).To(BeNumerically(">=", R[d-1]), "removed day %d", d)
				}
			}
		},
		Entry("slow spread", lab.Params{TotalCount: 10000, InitialInfectious: 1, TransmissionRate: 0.1, RecoveryPeriodDays: 14, HorizonDays: 365}),
		Entry("fast spread", lab.Params{TotalCount: 5367580, InitialInfectious: 100, TransmissionRate: 0.5, RecoveryPeriodDays: 7, HorizonDays: 200}),
		Entry("one day recovery", lab.Params{TotalCount: 500, InitialInfectious: 50, TransmissionRate: 0.5, RecoveryPeriodDays: 1, HorizonDays: 60}),
		Entry("with removed", lab.Params{TotalCount: 1000, InitialInfectious: 20, InitialRemoved: 400, TransmissionRate: 0.4, RecoveryPeriodDays: 5, HorizonDays: 90}),
		Entry("no transmission", lab.Params{TotalCount: 1000, InitialInfectious: 100, TransmissionRate: 0, RecoveryPeriodDays: 10, HorizonDays: 50}),
		Entry("everyone infectious", lab.Params{TotalCount: 100, InitialInfectious: 100, TransmissionRate: 0.3, RecoveryPeriodDays: 3, HorizonDays: 30}),
		Entry("beta 5", lab.Params{TotalCount: 1000, InitialInfectious: 10, TransmissionRate: 5, RecoveryPeriodDays: 10, HorizonDays: 60}),
		Entry("beta 10", lab.Params{TotalCount: 1000, InitialInfectious: 10, TransmissionRate: 10, RecoveryPeriodDays: 10, HorizonDays: 60}),
		Entry("beta at the limit", lab.Params{TotalCount: 5367580, InitialInfectious: 1, TransmissionRate: lab.MaxTransmissionRate, RecoveryPeriodDays: 1, HorizonDays: 30}),
	)

	It("keeps the normalized sum on its day-0 value", func() {
		p := scenario()
		p.TransmissionRate = 10
		p.HorizonDays = 365
		Expect(mustRecompute(mustController(p)).Drift()).To(BeNumerically("<", 1e-12))
	})

	It("keeps susceptible constant and decays infectious by recovery alone when beta is 0", func() {
		p := scenario()
		p.TransmissionRate = 0
		traj := mustRecompute(mustController(p))

		S, I := traj.Susceptible(), traj.Infectious()
		for d := range S {
			Expect(S[d]).To(Equal(S[0]))
			expected := 10 * math.Exp(-float64(d)/10)
			Expect(math.Abs(I[d]-expected) / expected).To(BeNumerically("<", 1e-5))
		}
	})

	It("returns bit-identical trajectories for unchanged parameters", func() {
		c := mustController(scenario())
		a := mustRecompute(c)
		b := mustRecompute(c)

		Expect(b.Susceptible()).To(Equal(a.Susceptible()))
		Expect(b.Infectious()).To(Equal(a.Infectious()))
		Expect(b.Removed()).To(Equal(a.Removed()))
		Expect(b).NotTo(BeIdenticalTo(a))
	})

	It("returns a single sample for a zero-day horizon", func() {
		p := scenario()
		p.HorizonDays = 0
		p.InitialRemoved = 90
		traj := mustRecompute(mustController(p))

		Expect(traj.Len()).To(Equal(1))
		day0, _ := traj.At(0)
		Expect(day0.Susceptible).To(BeNumerically("~", 900, 1e-9))
		Expect(day0.Infectious).To(BeNumerically("~", 10, 1e-9))
		Expect(day0.Removed).To(BeNumerically("~", 90, 1e-9))
		_, ok := traj.At(1)
		Expect(ok).To(BeFalse())
	})

	It("hands out copies of the series", func() {
		c := mustController(scenario())
		traj := mustRecompute(c)

		S := traj.Susceptible()
		S[0] = -1
		Expect(traj.Susceptible()[0]).To(BeNumerically("~", 990, 1e-9))
		Expect(c.Latest().Susceptible()[0]).To(BeNumerically("~", 990, 1e-9))
	})

	Describe("state machine", func() {
		It("starts dirty, is clean after recompute and dirty after an edit", func() {
			c := mustController(scenario())
			Expect(c.Dirty()).To(BeTrue())
			Expect(c.Latest()).To(BeNil())

			traj := mustRecompute(c)
			Expect(c.Dirty()).To(BeFalse())
			Expect(c.Latest()).To(BeIdenticalTo(traj))

			Expect(c.SetParameter(lab.ParamBeta, 0.5)).To(Succeed())
			Expect(c.Dirty()).To(BeTrue())
			Expect(c.Latest()).To(BeIdenticalTo(traj), "edits must not recompute")

			next := mustRecompute(c)
			Expect(c.Dirty()).To(BeFalse())
			Expect(next.Params().TransmissionRate).To(Equal(0.5))
			Expect(next.Generation()).To(BeNumerically(">", traj.Generation()))
		})
	})

	Describe("SetParameter", func() {
		var (
			c    *lab.Controller
			obs  *recordingObserver
			prev *lab.Trajectory
		)

		BeforeEach(func() {
			obs = &recordingObserver{}
			c = mustController(scenario(), lab.WithObserver(obs))
			prev = mustRecompute(c)
		})

		It("applies each editable parameter", func() {
			Expect(c.SetParameter(lab.ParamInfectious, 25)).To(Succeed())
			Expect(c.SetParameter(lab.ParamRemoved, 100)).To(Succeed())
			Expect(c.SetParameter(lab.ParamBeta, 0.45)).To(Succeed())
			Expect(c.SetParameter(lab.ParamRecoveryDays, 7)).To(Succeed())
			Expect(c.SetParameter(lab.ParamPopulation, 2000)).To(Succeed())

			Expect(c.Params()).To(Equal(lab.Params{
				TotalCount:         2000,
				InitialInfectious:  25,
				InitialRemoved:     100,
				TransmissionRate:   0.45,
				RecoveryPeriodDays: 7,
				HorizonDays:        30,
			}))
		})

		It("accepts a zero transmission rate", func() {
			Expect(c.SetParameter(lab.ParamBeta, 0)).To(Succeed())
		})

		DescribeTable("rejects invalid edits and keeps the previous state",
			func(name string, value float64, target error) {
				before := c.Params()

				err := c.SetParameter(name, value)

				Expect(err).To(MatchError(lab.ErrInvalidParameter))
				Expect(errors.Is(err, target)).To(BeTrue())
				var perr *lab.ParameterError
				Expect(errors.As(err, &perr)).To(BeTrue())
				Expect(perr.Reason).NotTo(BeEmpty())

				Expect(c.Params()).To(Equal(before))
				Expect(c.Dirty()).To(BeFalse())
				Expect(c.Latest()).To(BeIdenticalTo(prev))
				Expect(obs.rejected).To(ConsistOf(name))
			},
			Entry("recovery period below one day", lab.ParamRecoveryDays, 0.0, lab.ErrInvalidParameter),
			Entry("negative infectious", lab.ParamInfectious, -1.0, lab.ErrInvalidParameter),
			Entry("negative removed", lab.ParamRemoved, -5.0, lab.ErrInvalidParameter),
			Entry("infectious and removed above population", lab.ParamRemoved, 991.0, lab.ErrInvalidParameter),
			Entry("negative beta", lab.ParamBeta, -0.1, lab.ErrInvalidParameter),
			Entry("NaN beta", lab.ParamBeta, math.NaN(), lab.ErrInvalidParameter),
			Entry("infinite beta", lab.ParamBeta, math.Inf(1), lab.ErrInvalidParameter),
			Entry("beta above the limit", lab.ParamBeta, lab.MaxTransmissionRate+0.5, lab.ErrInvalidParameter),
			Entry("fractional count", lab.ParamInfectious, 2.5, lab.ErrInvalidParameter),
			Entry("NaN count", lab.ParamRecoveryDays, math.NaN(), lab.ErrInvalidParameter),
			Entry("zero population", lab.ParamPopulation, 0.0, lab.ErrInvalidParameter),
			Entry("population below infectious", lab.ParamPopulation, 5.0, lab.ErrInvalidParameter),
			Entry("horizon is fixed", lab.ParamHorizon, 60.0, lab.ErrInvalidParameter),
			Entry("unknown name", "delta", 1.0, lab.ErrUnknownParameter),
		)

		It("parses text input", func() {
			Expect(c.SetParameterText(lab.ParamBeta, " 0.25 ")).To(Succeed())
			Expect(c.SetParameterText(lab.ParamInfectious, "42")).To(Succeed())
			Expect(c.Params().TransmissionRate).To(Equal(0.25))
			Expect(c.Params().InitialInfectious).To(Equal(42))
		})

		It("rejects non-numeric text", func() {
			err := c.SetParameterText(lab.ParamInfectious, "ten")
			Expect(err).To(MatchError(lab.ErrInvalidParameter))
			Expect(err.Error()).To(ContainSubstring("not a number"))
			Expect(c.Params()).To(Equal(scenario()))
			Expect(obs.rejected).To(ConsistOf(lab.ParamInfectious))
		})

		It("rejects NaN typed as text", func() {
			Expect(c.SetParameterText(lab.ParamBeta, "NaN")).To(MatchError(lab.ErrInvalidParameter))
			Expect(c.Params().TransmissionRate).To(Equal(0.3))
		})
	})

	Describe("New", func() {
		It("rejects invalid initial parameters", func() {
			p := scenario()
			p.RecoveryPeriodDays = 0
			_, err := lab.New(p)
			Expect(err).To(MatchError(lab.ErrInvalidParameter))

			p = scenario()
			p.HorizonDays = -1
			_, err = lab.New(p)
			Expect(err).To(MatchError(lab.ErrInvalidParameter))
		})

		It("rejects an unknown normalization", func() {
			_, err := lab.New(scenario(), lab.WithNormalization("half"))
			Expect(err).To(HaveOccurred())
		})

		It("describes the parameters for an input form", func() {
			infos := mustController(scenario()).Parameters()
			names := make([]string, 0, len(infos))
			for _, info := range infos {
				names = append(names, info.Name)
				if info.Name == lab.ParamHorizon {
					Expect(info.Editable).To(BeFalse())
					Expect(info.Value).To(Equal(30.0))
				}
			}
			Expect(names).To(ContainElements(lab.ParamInfectious, lab.ParamRemoved, lab.ParamBeta, lab.ParamRecoveryDays))
		})
	})

	Describe("integrator faults", func() {
		It("keeps the last good trajectory and stays dirty", func() {
			obs := &recordingObserver{}
			faulty := false
			factory := func() dynamo.Integrator {
				if !faulty {
					return integrators.NewRK4()
				}
				return stepFunc(func(_ dynamo.System, x dynamo.State, _, _ float64) dynamo.State {
					return dynamo.State{math.NaN(), x[1], x[2]}
				})
			}
			c := mustController(scenario(), lab.WithObserver(obs), lab.WithIntegrator(factory))
			good := mustRecompute(c)

			Expect(c.SetParameter(lab.ParamBeta, 0.4)).To(Succeed())
			faulty = true
			traj, err := c.Recompute()

			Expect(traj).To(BeNil())
			Expect(err).To(MatchError(lab.ErrIntegratorFault))
			Expect(err).To(MatchError(dynamo.ErrInvalidState))
			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Step).To(Equal(1))
			var fault *lab.FaultError
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Generation).To(Equal(good.Generation() + 1))

			Expect(c.Latest()).To(BeIdenticalTo(good))
			Expect(c.Dirty()).To(BeTrue())
			Expect(obs.faults).To(Equal(1))

			faulty = false
			Expect(c.SetParameter(lab.ParamBeta, 0.3)).To(Succeed())
			Expect(mustRecompute(c).Susceptible()).To(Equal(good.Susceptible()))
		})

		It("never faults for accepted parameters", func() {
			c := mustController(scenario())
			for _, beta := range []float64{0, 1, 5, 10, 50, lab.MaxTransmissionRate} {
				Expect(c.SetParameter(lab.ParamBeta, beta)).To(Succeed())
				Expect(c.SetParameter(lab.ParamRecoveryDays, 1)).To(Succeed())
				_, err := c.Recompute()
				Expect(err).NotTo(HaveOccurred(), "beta %v", beta)
			}
		})
	})

	Describe("observers", func() {
		It("may call back into the controller", func() {
			obs := &reentrantObserver{}
			c := mustController(scenario(), lab.WithObserver(obs))
			obs.c = c

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				mustRecompute(c)
				Expect(c.SetParameter(lab.ParamRecoveryDays, 0)).NotTo(Succeed())
				Expect(c.SetParameterText(lab.ParamBeta, "fast")).NotTo(Succeed())
			}()

			Eventually(done).Should(BeClosed())
			Expect(obs.seen).To(Equal([]lab.Params{scenario(), scenario(), scenario()}))
		})
	})

	Describe("integrator substitution", func() {
		It("agrees across fixed-step methods", func() {
			p := scenario()
			p.HorizonDays = 120
			rk4 := mustRecompute(mustController(p))

			factory, err := lab.IntegratorByName("dopri5")
			Expect(err).NotTo(HaveOccurred())
			dp := mustRecompute(mustController(p, lab.WithIntegrator(factory)))

			a, b := rk4.Infectious(), dp.Infectious()
			for d := range a {
				Expect(math.Abs(a[d] - b[d])).To(BeNumerically("<", 1), "day %d", d)
			}
		})

		It("rejects unknown integrator names", func() {
			_, err := lab.IntegratorByName("leapfrog")
			Expect(err).To(MatchError(dynamo.ErrUnknownIntegrator))
		})
	})

	Describe("recompute timing", func() {
		It("measures elapsed time on the injected clock", func() {
			clk := clockwork.NewFakeClock()
			obs := &recordingObserver{}
			ticking := func() dynamo.Integrator {
				return stepFunc(func(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
					clk.Advance(time.Millisecond)
					return integrators.NewRK4().Step(sys, x, t, dt)
				})
			}
			c := mustController(scenario(), lab.WithClock(clk), lab.WithObserver(obs), lab.WithIntegrator(ticking))

			mustRecompute(c)

			Expect(obs.elapsed).To(Equal([]time.Duration{30 * time.Millisecond}))
		})
	})

	Describe("overlapping recomputes", func() {
		It("never lets an older run replace a newer trajectory", func() {
			entered := make(chan struct{})
			release := make(chan struct{})
			calls := 0
			factory := func() dynamo.Integrator {
				calls++
				if calls != 1 {
					return integrators.NewRK4()
				}
				var once sync.Once
				return stepFunc(func(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
					once.Do(func() {
						close(entered)
						<-release
					})
					return integrators.NewRK4().Step(sys, x, t, dt)
				})
			}
			c := mustController(scenario(), lab.WithIntegrator(factory))

			slow := make(chan *lab.Trajectory, 1)
			go func() {
				defer GinkgoRecover()
				traj, err := c.Recompute()
				Expect(err).NotTo(HaveOccurred())
				slow <- traj
			}()
			Eventually(entered).Should(BeClosed())

			Expect(c.SetParameter(lab.ParamBeta, 0.5)).To(Succeed())
			fresh := mustRecompute(c)
			Expect(c.Latest()).To(BeIdenticalTo(fresh))

			close(release)
			var stale *lab.Trajectory
			Eventually(slow).Should(Receive(&stale))

			Expect(stale.Generation()).To(BeNumerically("<", fresh.Generation()))
			Expect(stale.Params().TransmissionRate).To(Equal(0.3))
			Expect(c.Latest()).To(BeIdenticalTo(fresh))
			Expect(c.Dirty()).To(BeFalse())
		})
	})

	Describe("legacy normalization", func() {
		It("matches the default when nothing is removed", func() {
			legacy := mustRecompute(mustController(scenario(), lab.WithNormalization(lab.NormalizeExcludeRemoved)))
			def := mustRecompute(mustController(scenario()))
			Expect(legacy.Base()).To(Equal(def.Base()))
			Expect(legacy.Infectious()).To(Equal(def.Infectious()))
		})

		It("breaks the population closure once removed is non-zero", func() {
			p := scenario()
			p.InitialRemoved = 200
			traj := mustRecompute(mustController(p, lab.WithNormalization(lab.NormalizeExcludeRemoved)))

			day0, _ := traj.At(0)
			Expect(day0.Susceptible).To(BeNumerically("~", 990, 1e-9))
			total := day0.Susceptible + day0.Infectious + day0.Removed
			Expect(total).To(BeNumerically("~", 1200, 1e-9), "sum exceeds the population by the removed count")

			last, _ := traj.At(traj.Len() - 1)
			Expect(last.Susceptible + last.Infectious + last.Removed).To(BeNumerically("~", 1200, 1e-6))
		})
	})
})

type reentrantObserver struct {
	c    *lab.Controller
	seen []lab.Params
}

func (r *reentrantObserver) OnRecompute(time.Duration, *lab.Trajectory, error) {
	_ = r.c.Latest()
	r.seen = append(r.seen, r.c.Params())
}

func (r *reentrantObserver) OnRejected(string, error) {
	r.seen = append(r.seen, r.c.Params())
}

type stepFunc func(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State

func (f stepFunc) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	return f(sys, x, t, dt)
}
