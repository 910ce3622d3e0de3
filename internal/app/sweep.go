package app

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"qba/internal/config"
	"qba/internal/engine"
	"qba/internal/output"
	"qba/internal/params"
	"qba/internal/randx"
	"qba/internal/storage"
	"qba/internal/sweep"
)

// parseAxis parses "name=v1,v2,...".
func parseAxis(s string) (sweep.Axis, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok {
		return sweep.Axis{}, usagef("--axis %q: want name=v1,v2,...", s)
	}
	ax := sweep.Axis{Name: strings.TrimSpace(name)}
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return sweep.Axis{}, usagef("--axis %q: %v", s, err)
		}
		ax.Values = append(ax.Values, v)
	}
	return ax, nil
}

func newSweepCmd(st *state) *cobra.Command {
	var (
		f       commonFlags
		axes    []string
		workers int
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate the adjustment over a grid of fixed bias parameters",
		Long: "sweep evaluates the fixed-parameter adjustment at every point of the\n" +
			"Cartesian product of the axes. Undefined grid points are reported, not fatal.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.resolve(st, cmd.Flags(), func(a *config.Analysis) error {
				if len(axes) > 0 {
					a.Sweep = sweep.Grid{}
					for _, raw := range axes {
						ax, err := parseAxis(raw)
						if err != nil {
							return err
						}
						a.Sweep.Axes = append(a.Sweep.Axes, ax)
					}
				}
				if changed(cmd.Flags(), "workers") {
					a.PBA.Workers = workers
				}
				if changed(cmd.Flags(), "seed") {
					a.PBA.Seed = seed
				}
				return nil
			})
			if err != nil {
				return err
			}
			grid := s.analysis.Sweep
			if len(grid.Axes) == 0 {
				return usagef("no sweep axes: pass --axis or set sweep in --config")
			}
			if err := grid.Validate(); err != nil {
				return usageError{err: err}
			}

			p := s.analysis.Params
			if !p.Fixed() {
				return usagef("sweep needs fixed base parameters; run pba for distributions")
			}
			eng, err := engine.New(s.analysis.PBA.Engine, s.data)
			if err != nil {
				return err
			}
			if err := eng.CheckParameters(p); err != nil {
				return err
			}

			// Swept names missing from the base get neutral sections from
			// Scalars.Set.
			base := p.Draw(randx.Source(1, 0, randx.Draw))
			runSeed := s.analysis.PBA.Seed
			if runSeed == 0 && eng.Config().Mode == engine.ModeRecord {
				if runSeed, err = randx.NewSeed(); err != nil {
					return err
				}
			}
			// Every cell imputes from the same stream so cells differ only by
			// their parameters.
			fn := func(sc params.Scalars) (float64, error) {
				est, err := eng.Estimate(eng.Sample(), sc, randx.Stream(runSeed, 0, randx.Impute))
				if err != nil {
					return math.NaN(), err
				}
				return est.Corrected, nil
			}
			cells, err := sweep.Run(cmd.Context(), grid, base, s.analysis.PBA.Workers, fn)
			if err != nil {
				return err
			}

			trials := make([]storage.Trial, len(cells))
			used := 0
			for i, c := range cells {
				trials[i] = storage.Trial{Index: c.Index, Estimate: c.Estimate}
				if c.Err != nil {
					trials[i].Estimate = math.NaN()
					trials[i].Error = c.Err.Error()
					continue
				}
				used++
			}
			s.logger.Info("sweep_done", slog.Int("cells", len(cells)), slog.Int("defined", used))
			id, err := s.save(cmd.Context(), storage.Run{
				Command:  "sweep",
				Seed:     runSeed,
				Observed: math.NaN(),
				Point:    math.NaN(),
				Low:      math.NaN(),
				High:     math.NaN(),
				Level:    math.NaN(),
				Used:     used,
				Excluded: len(cells) - used,
			}, trials)
			if err != nil {
				return err
			}

			m := s.meta()
			m.RunID = id
			return s.write(st.stdout, output.ToAPISweep(m, grid, cells))
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringArrayVar(&axes, "axis", nil, "sweep axis, name=v1,v2,... (repeatable; replaces the file's sweep)")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "parallel cells; 0 uses every CPU")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "imputation seed in record mode; 0 picks one")
	return cmd
}
