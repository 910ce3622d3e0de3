package pba

import (
	"log/slog"
	"math"

	"qba/internal/engine"
	"qba/internal/metrics"
	"qba/internal/qbaerr"
)

// Policy decides what a trial-level error does to the run.
type Policy int

const (
	// Lenient records the trial as undefined and excludes it.
	Lenient Policy = iota
	// Strict fails the run with the lowest-index trial error.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// ParsePolicy maps "strict" / "lenient" to a Policy. Empty means Lenient.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return 0, qbaerr.Newf("pba.parse_policy", qbaerr.KindInvalidParameter, "unknown policy %q (want strict|lenient)", s)
	}
}

// Defaults.
const (
	DefaultTrials = 1000
	DefaultLevel  = 0.95
)

// Config controls a run.
type Config struct {
	Trials    int     // number of trials (>=1)
	Seed      uint64  // base seed; 0 picks one, reported in Result.Seed
	Workers   int     // parallel trials; 0 means GOMAXPROCS
	Policy    Policy  // trial-level error handling
	Level     float64 // simulation interval coverage in (0,1)
	Bootstrap bool    // resample records per trial
	Engine    engine.Config
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{Trials: DefaultTrials, Level: DefaultLevel, Bootstrap: true}
}

// Validate checks the numeric settings.
func (c Config) Validate() error {
	const op = "pba.config"
	if c.Trials < 1 {
		return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "trials must be >= 1, got %d", c.Trials)
	}
	if c.Workers < 0 {
		return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "workers must be >= 0, got %d", c.Workers)
	}
	if !(c.Level > 0 && c.Level < 1) || math.IsNaN(c.Level) {
		return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "level must be in (0,1), got %v", c.Level)
	}
	return nil
}

// Option customises a run.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	progress func(done, total int)
}

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sends trial and run events to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithProgress calls fn after every finished trial. fn is called from worker
// goroutines and must be safe for concurrent use.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) { o.progress = fn }
}
