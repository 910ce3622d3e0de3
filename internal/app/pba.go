package app

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"qba/internal/config"
	"qba/internal/metrics"
	"qba/internal/output"
	"qba/internal/pba"
	"qba/internal/storage"
	"qba/internal/writers"
)

type pbaFlags struct {
	trials      int
	seed        uint64
	workers     int
	policy      string
	level       float64
	noBootstrap bool
	trialsOut   string
	metricsOut  string
	keepTrials  bool
}

func (f *pbaFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.trials, "trials", "n", pba.DefaultTrials, "number of trials (env QBA_TRIALS)")
	fs.Uint64Var(&f.seed, "seed", 0, "base seed; 0 picks one and reports it (env QBA_SEED)")
	fs.IntVarP(&f.workers, "workers", "j", 0, "parallel trials; 0 uses every CPU (env QBA_WORKERS)")
	fs.StringVar(&f.policy, "policy", "", "undefined trials: lenient|strict")
	fs.Float64Var(&f.level, "level", pba.DefaultLevel, "interval level in (0,1)")
	fs.BoolVar(&f.noBootstrap, "no-bootstrap", false, "do not resample records per trial")
	fs.StringVar(&f.trialsOut, "trials-out", "", "write one JSON line per trial to this file (- for stdout)")
	fs.StringVar(&f.metricsOut, "metrics-out", "", "write prometheus metrics in textfile format to this file")
	fs.BoolVar(&f.keepTrials, "store-trials", true, "store per-trial estimates with --db")
}

func (f *pbaFlags) apply(cmd *cobra.Command, a *config.Analysis) error {
	flags := cmd.Flags()
	if changed(flags, "trials") {
		a.PBA.Trials = f.trials
	}
	if changed(flags, "seed") {
		a.PBA.Seed = f.seed
	}
	if changed(flags, "workers") {
		a.PBA.Workers = f.workers
	}
	if changed(flags, "policy") {
		p, err := pba.ParsePolicy(f.policy)
		if err != nil {
			return usageError{err: err}
		}
		a.PBA.Policy = p
	}
	if changed(flags, "level") {
		a.PBA.Level = f.level
	}
	if f.noBootstrap {
		a.PBA.Bootstrap = false
	}
	return nil
}

func newPBACmd(st *state) *cobra.Command {
	var (
		f  commonFlags
		pf pbaFlags
	)
	cmd := &cobra.Command{
		Use:   "pba",
		Short: "Probabilistic bias analysis: repeat the adjustment over drawn bias parameters",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.resolve(st, cmd.Flags(), func(a *config.Analysis) error { return pf.apply(cmd, a) })
			if err != nil {
				return err
			}

			opts := []pba.Option{pba.WithLogger(s.logger)}
			var reg *prometheus.Registry
			if pf.metricsOut != "" {
				reg = prometheus.NewRegistry()
				opts = append(opts, pba.WithRecorder(metrics.NewPrometheus(reg)))
			}

			res, err := pba.Run(cmd.Context(), s.analysis.PBA, s.data, s.analysis.Params, opts...)
			if err != nil {
				return err
			}

			if pf.trialsOut != "" {
				if err := writeTrials(st, pf.trialsOut, res.Trials); err != nil {
					return err
				}
			}
			if reg != nil {
				if err := metrics.WriteTextfile(pf.metricsOut, reg); err != nil {
					return err
				}
			}

			run := storage.Run{
				Command:    "pba",
				Seed:       res.Seed,
				Observed:   res.Observed,
				Point:      res.Point,
				Low:        res.Low,
				High:       res.High,
				Level:      res.Level,
				Used:       res.Used,
				Excluded:   res.Excluded,
				Exclusions: make(map[string]int, len(res.Exclusions)),
			}
			for k, n := range res.Exclusions {
				run.Exclusions[string(k)] = n
			}
			var trials []storage.Trial
			if pf.keepTrials {
				trials = make([]storage.Trial, len(res.Trials))
				for i, t := range res.Trials {
					trials[i] = storage.Trial{Index: t.Index, Estimate: output.TrialEstimate(t)}
					if t.Err != nil {
						trials[i].Error = t.Err.Error()
					}
				}
			}
			id, err := s.save(cmd.Context(), run, trials)
			if err != nil {
				return err
			}

			m := s.meta()
			m.RunID = id
			return s.write(st.stdout, output.ToAPIResult(m, res))
		},
	}
	f.register(cmd.Flags())
	pf.register(cmd)
	return cmd
}

func writeTrials(st *state, path string, trials []pba.Trial) error {
	if path == "-" {
		return writers.WriteTrialsJSONL(st.stdout, trials)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trials output: %w", err)
	}
	if err := writers.WriteTrialsJSONL(fh, trials); err != nil {
		_ = fh.Close()
		return fmt.Errorf("trials output: %w", err)
	}
	return fh.Close()
}
