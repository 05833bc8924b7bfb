package metrics

import (
	"errors"
	"time"

	"github.com/myth/coroner/internal/lab"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records lab activity as Prometheus metrics. It implements
// lab.Observer.
type Collector struct {
	Recomputes        prometheus.Counter
	RecomputeFaults   prometheus.Counter
	RecomputeDuration prometheus.Histogram
	Rejections        *prometheus.CounterVec // labels: parameter, reason={invalid,unknown}
	PeakInfectious    prometheus.Gauge
	PeakDay           prometheus.Gauge
	R0                prometheus.Gauge
}

// NewCollector creates the lab metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "recomputes_total",
			Help:      "Total completed recomputes, successful or not.",
		}),
		RecomputeFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "recompute_faults_total",
			Help:      "Recomputes aborted by a non-finite integrator state.",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "recompute_duration_seconds",
			Help:      "Wall time of one recompute.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "rejected_edits_total",
			Help:      "Parameter edits rejected by validation.",
		}, []string{"parameter", "reason"}),
		PeakInfectious: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "peak_infectious",
			Help:      "Peak infectious count of the last successful recompute.",
		}),
		PeakDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "peak_day",
			Help:      "Day of the infectious peak in the last successful recompute.",
		}),
		R0: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coroner",
			Subsystem: "lab",
			Name:      "r0",
			Help:      "Basic reproduction number of the last successful recompute.",
		}),
	}

	reg.MustRegister(
		c.Recomputes,
		c.RecomputeFaults,
		c.RecomputeDuration,
		c.Rejections,
		c.PeakInfectious,
		c.PeakDay,
		c.R0,
	)

	return c
}

func (c *Collector) OnRecompute(elapsed time.Duration, traj *lab.Trajectory, err error) {
	c.Recomputes.Inc()
	c.RecomputeDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.RecomputeFaults.Inc()
		return
	}
	sum := traj.Summary()
	c.PeakInfectious.Set(sum.PeakInfectious)
	c.PeakDay.Set(float64(sum.PeakDay))
	c.R0.Set(sum.R0)
}

func (c *Collector) OnRejected(name string, err error) {
	reason := "invalid"
	if errors.Is(err, lab.ErrUnknownParameter) {
		reason = "unknown"
		name = "other"
	}
	c.Rejections.WithLabelValues(name, reason).Inc()
}
