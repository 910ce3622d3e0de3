package pba

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"qba/internal/dataset"
	"qba/internal/engine"
	"qba/internal/logging"
	"qba/internal/metrics"
	"qba/internal/params"
	"qba/internal/qbaerr"
	"qba/internal/randx"
)

// Trial is the outcome of one trial. Err is set for excluded trials.
type Trial struct {
	Index    int
	Params   params.Scalars
	Observed float64
	Estimate float64
	Err      error
}

// Defined reports whether the trial produced an estimate.
func (t Trial) Defined() bool { return t.Err == nil }

// Result summarises a run. It does not share memory with the driver.
type Result struct {
	Seed   uint64
	Trials []Trial

	// Observed is the pooled ratio of the full analysed sample without any
	// correction; NaN when undefined.
	Observed float64

	Point, Low, High float64
	Level            float64

	Used, Excluded int
	Exclusions     map[qbaerr.Kind]int
	Elapsed        time.Duration
}

// Run executes cfg.Trials trials of p over ds.
//
// Trial i draws parameters, resamples and imputes from streams derived from
// (seed, i) only, and writes into slot i of a preallocated slice, so the
// result is the same for every worker count. Cancellation is checked before
// each trial; a cancelled run returns ctx.Err().
func Run(ctx context.Context, cfg Config, ds *dataset.Dataset, p params.Parameters, opts ...Option) (*Result, error) {
	o := options{logger: logging.Discard(), recorder: metrics.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg.Engine, ds)
	if err != nil {
		return nil, err
	}
	if err := eng.CheckParameters(p); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		if seed, err = randx.NewSeed(); err != nil {
			return nil, err
		}
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, span := otel.Tracer("qba").Start(ctx, "pba.Run",
		trace.WithAttributes(
			attribute.Int("trials", cfg.Trials),
			attribute.Int("workers", workers),
			attribute.Int64("seed", int64(seed)),
			attribute.String("policy", cfg.Policy.String()),
		),
	)
	defer span.End()

	log := o.logger.With(slog.Uint64("seed", seed))
	log.Info("pba_run_start",
		slog.Int("trials", cfg.Trials),
		slog.Int("workers", workers),
		slog.Int("records", len(eng.Sample())),
		slog.String("policy", cfg.Policy.String()),
		slog.Bool("bootstrap", cfg.Bootstrap),
	)
	start := time.Now()

	r := &runner{cfg: cfg, seed: seed, eng: eng, params: p}
	trials, err := r.run(ctx, workers, &o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		log.Info("pba_run_failed", slog.String("error", err.Error()))
		return nil, err
	}

	res, err := summarise(trials, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no defined trials")
		return nil, err
	}
	res.Seed = seed
	res.Elapsed = time.Since(start)
	res.Observed = math.NaN()
	if obs, err := eng.Estimate(eng.Sample(), params.Scalars{}, nil); err == nil {
		res.Observed = obs.Observed
	}

	o.recorder.RunDone(res.Elapsed, res.Used, res.Excluded)
	span.SetAttributes(
		attribute.Int("used", res.Used),
		attribute.Int("excluded", res.Excluded),
	)
	span.SetStatus(codes.Ok, "")
	log.Info("pba_run_done",
		slog.Int("used", res.Used),
		slog.Int("excluded", res.Excluded),
		slog.Float64("point", res.Point),
		slog.Float64("low", res.Low),
		slog.Float64("high", res.High),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

type runner struct {
	cfg    Config
	seed   uint64
	eng    *engine.Engine
	params params.Parameters
}

// noFailure marks that no strict-mode trial has failed yet.
const noFailure = math.MaxInt64

func (r *runner) run(ctx context.Context, workers int, o *options) ([]Trial, error) {
	total := r.cfg.Trials
	trials := make([]Trial, total)

	// In strict mode the lowest failing index stops scheduling of later
	// trials. Earlier ones always run to completion so the reported error
	// does not depend on timing.
	var firstFailure atomic.Int64
	firstFailure.Store(noFailure)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < total; i++ {
		if gctx.Err() != nil || int64(i) > firstFailure.Load() {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := r.trial(i)
			trials[i] = t

			if t.Err != nil {
				kind := qbaerr.KindOf(t.Err)
				if !qbaerr.IsTrialLevel(kind) {
					return fmt.Errorf("trial %d: %w", i, t.Err)
				}
				o.recorder.TrialDone(metrics.OutcomeExcluded, string(kind))
				o.logger.Debug("trial_undefined", slog.Int("trial", i), slog.String("kind", string(kind)), slog.String("error", t.Err.Error()))
				if r.cfg.Policy == Strict {
					lowerFailure(&firstFailure, int64(i))
				}
			} else {
				o.recorder.TrialDone(metrics.OutcomeUsed, "")
			}
			if o.progress != nil {
				o.progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.cfg.Policy == Strict {
		for _, t := range trials {
			if t.Err != nil {
				return nil, fmt.Errorf("trial %d: %w", t.Index, t.Err)
			}
		}
	}
	return trials, nil
}

func lowerFailure(v *atomic.Int64, i int64) {
	for {
		cur := v.Load()
		if i >= cur || v.CompareAndSwap(cur, i) {
			return
		}
	}
}

// trial runs trial i. It touches nothing shared except read-only inputs.
func (r *runner) trial(i int) Trial {
	s := r.params.Draw(randx.Source(r.seed, i, randx.Draw))
	records := r.eng.Sample()
	if r.cfg.Bootstrap {
		records = dataset.Resample(records, randx.Stream(r.seed, i, randx.Resample))
	}
	est, err := r.eng.Estimate(records, s, randx.Stream(r.seed, i, randx.Impute))
	if err != nil {
		return Trial{Index: i, Params: s, Observed: math.NaN(), Estimate: math.NaN(), Err: err}
	}
	return Trial{Index: i, Params: s, Observed: est.Observed, Estimate: est.Corrected}
}

// summarise computes the median and the central Level interval of the
// defined estimates.
func summarise(trials []Trial, cfg Config) (*Result, error) {
	res := &Result{Trials: trials, Level: cfg.Level, Exclusions: map[qbaerr.Kind]int{}}
	xs := make([]float64, 0, len(trials))
	for _, t := range trials {
		if t.Err != nil {
			res.Excluded++
			res.Exclusions[qbaerr.KindOf(t.Err)]++
			continue
		}
		xs = append(xs, t.Estimate)
	}
	res.Used = len(xs)
	if len(xs) == 0 {
		return nil, qbaerr.Newf("pba.summarise", qbaerr.KindUndefinedPooling, "all %d trials were excluded", len(trials))
	}
	sort.Float64s(xs)
	tail := (1 - cfg.Level) / 2
	res.Point = stat.Quantile(0.5, stat.LinInterp, xs, nil)
	res.Low = stat.Quantile(tail, stat.LinInterp, xs, nil)
	res.High = stat.Quantile(1-tail, stat.LinInterp, xs, nil)
	return res, nil
}
