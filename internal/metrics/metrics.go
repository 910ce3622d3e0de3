// Package metrics exposes PBA run counters through prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for TrialDone.
const (
	OutcomeUsed     = "used"
	OutcomeExcluded = "excluded"
)

// Recorder receives run events from the PBA driver. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// TrialDone records one finished trial. kind is empty for used trials.
	TrialDone(outcome, kind string)
	// RunDone records a finished run.
	RunDone(d time.Duration, used, excluded int)
}

// Nop discards every event.
type Nop struct{}

func (Nop) TrialDone(string, string)        {}
func (Nop) RunDone(time.Duration, int, int) {}

// Prometheus records events into collectors registered on one registry.
type Prometheus struct {
	trials      *prometheus.CounterVec
	runs        prometheus.Counter
	runDuration prometheus.Histogram
	excluded    prometheus.Gauge
}

// NewPrometheus registers the PBA collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		// trials counts finished trials by outcome and exclusion kind
		trials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qba_pba_trials_total",
			Help: "Finished PBA trials by outcome and exclusion kind",
		}, []string{"outcome", "kind"}),

		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "qba_pba_runs_total",
			Help: "Completed PBA runs",
		}),

		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "qba_pba_run_duration_seconds",
			Help:    "PBA run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),

		// excluded is the exclusion share of the last run
		excluded: f.NewGauge(prometheus.GaugeOpts{
			Name: "qba_pba_last_run_excluded_ratio",
			Help: "Fraction of trials excluded in the most recent run",
		}),
	}
}

func (p *Prometheus) TrialDone(outcome, kind string) {
	p.trials.WithLabelValues(outcome, kind).Inc()
}

func (p *Prometheus) RunDone(d time.Duration, used, excluded int) {
	p.runs.Inc()
	p.runDuration.Observe(d.Seconds())
	if total := used + excluded; total > 0 {
		p.excluded.Set(float64(excluded) / float64(total))
	}
}

// WriteTextfile dumps every metric gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
