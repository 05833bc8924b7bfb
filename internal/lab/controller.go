package lab

import (
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/myth/coroner/internal/dynamo"
	"github.com/myth/coroner/internal/epidemic"
	"github.com/myth/coroner/internal/integrators"
)

// Observer is notified about every recompute and every rejected edit.
// Callbacks run on the caller's goroutine without the controller lock held,
// so they may call back into the controller.
type Observer interface {
	OnRecompute(elapsed time.Duration, traj *Trajectory, err error)
	OnRejected(name string, err error)
}

// IntegratorFactory builds the integrator for one recompute. Integrators
// may keep scratch state, so each run gets its own.
type IntegratorFactory func() dynamo.Integrator

// IntegratorByName resolves a registered integrator name to a factory.
func IntegratorByName(name string) (IntegratorFactory, error) {
	if _, err := integrators.New(name); err != nil {
		return nil, err
	}
	return func() dynamo.Integrator {
		integ, _ := integrators.New(name)
		return integ
	}, nil
}

type Option func(*Controller)

func WithIntegrator(f IntegratorFactory) Option {
	return func(c *Controller) { c.newIntegrator = f }
}

func WithNormalization(n Normalization) Option {
	return func(c *Controller) { c.norm = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

func WithClock(clk clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// Controller owns the lab parameters and the last published trajectory.
//
// A controller is Dirty when its parameters changed since the trajectory
// returned by Latest was computed, and Clean otherwise. Edits never
// recompute on their own.
//
// Recompute may be called from several goroutines. Each call takes a
// generation number when it starts, and Latest only ever moves to a higher
// generation, so a slow run never replaces the result of a run started
// after it.
type Controller struct {
	mu            sync.Mutex
	params        Params
	norm          Normalization
	dirty         bool
	latest        *Trajectory
	started       uint64
	published     uint64
	newIntegrator IntegratorFactory
	logger        *slog.Logger
	observers     []Observer
	clock         clockwork.Clock
}

func New(p Params, opts ...Option) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		params:        p,
		norm:          NormalizeTotal,
		dirty:         true,
		newIntegrator: func() dynamo.Integrator { return integrators.NewRK4() },
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := ParseNormalization(string(c.norm)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Parameters describes the current parameters for an input form.
func (c *Controller) Parameters() []ParameterInfo {
	return c.Params().Describe()
}

func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Latest returns the most recent published trajectory, or nil before the
// first successful recompute.
func (c *Controller) Latest() *Trajectory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// SetParameter validates and applies one edit. A rejected edit returns a
// *ParameterError and leaves parameters and trajectory untouched.
func (c *Controller) SetParameter(name string, value float64) error {
	c.mu.Lock()
	next, err := c.params.with(name, value)
	if err == nil {
		err = next.Validate()
	}
	if err == nil {
		c.params = next
		c.dirty = true
	}
	c.mu.Unlock()

	if err != nil {
		c.reject(name, err)
		return err
	}
	c.logger.Debug("parameter updated", "name", name, "value", value)
	return nil
}

// SetParameterText applies an edit typed into a form field.
func (c *Controller) SetParameterText(name, raw string) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		perr := &ParameterError{Name: name, Value: raw, Reason: "not a number", Err: ErrInvalidParameter}
		c.reject(name, perr)
		return perr
	}
	return c.SetParameter(name, value)
}

func (c *Controller) reject(name string, err error) {
	c.logger.Warn("parameter rejected", "name", name, "error", err)
	for _, o := range c.observers {
		o.OnRejected(name, err)
	}
}

// Recompute solves the model for the current parameters. On an integrator
// fault the previous trajectory stays published and the error is a
// *FaultError wrapping ErrIntegratorFault.
func (c *Controller) Recompute() (*Trajectory, error) {
	c.mu.Lock()
	c.started++
	gen := c.started
	p := c.params
	norm := c.norm
	integ := c.newIntegrator()
	c.mu.Unlock()

	start := c.clock.Now()
	traj, err := solve(p, norm, integ, gen)
	elapsed := c.clock.Since(start)

	for _, o := range c.observers {
		o.OnRecompute(elapsed, traj, err)
	}

	if err != nil {
		c.logger.Error("recompute failed", "generation", gen, "error", err)
		return nil, &FaultError{Generation: gen, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen < c.published {
		c.logger.Debug("discarding superseded trajectory", "generation", gen, "published", c.published)
		return traj, nil
	}

	c.latest = traj
	c.published = gen
	if c.params == p {
		c.dirty = false
	}
	c.logger.Debug("recomputed", "generation", gen, "days", p.HorizonDays, "elapsed", elapsed, "drift", traj.Drift())
	return traj, nil
}

// maxStepRate bounds rate*h for a single integrator step. Up to this value
// RK4 keeps susceptible non-increasing and removed non-decreasing.
const maxStepRate = 0.5

// substeps is the number of integrator steps per day for the fastest rate.
func substeps(rates map[string]float64) int {
	fastest := 0.0
	for _, r := range rates {
		fastest = math.Max(fastest, r)
	}
	return max(1, int(math.Ceil(fastest/maxStepRate)))
}

func configure(m dynamo.Configurable, values map[string]float64) error {
	for name, v := range values {
		if err := m.SetParam(name, v); err != nil {
			return err
		}
	}
	return nil
}

func solve(p Params, norm Normalization, integ dynamo.Integrator, gen uint64) (*Trajectory, error) {
	base, x0 := p.initialState(norm)
	traj := newTrajectory(p, norm, base, gen)

	model := &epidemic.SIR{}
	if err := configure(model, map[string]float64{"beta": p.TransmissionRate, "gamma": p.Gamma()}); err != nil {
		return nil, err
	}

	total := x0.Sum()
	sim := dynamo.New(model, integ).WithSubsteps(substeps(model.Params()))
	err := sim.Run(x0, p.HorizonDays, dynamo.ObserverFunc(func(day int, x dynamo.State) {
		traj.susceptible[day] = x[epidemic.Susceptible] * base
		traj.infectious[day] = x[epidemic.Infectious] * base
		traj.removed[day] = x[epidemic.Removed] * base
		traj.drift = math.Max(traj.drift, math.Abs(x.Sum()-total))
	}))
	if err != nil {
		return nil, err
	}
	return traj, nil
}
