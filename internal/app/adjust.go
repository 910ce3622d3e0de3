package app

import (
	"log/slog"
	"math"

	"github.com/spf13/cobra"

	"qba/internal/engine"
	"qba/internal/output"
	"qba/internal/randx"
	"qba/internal/storage"
)

func newAdjustCmd(st *state) *cobra.Command {
	var f commonFlags
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Correct the observed ratio once with fixed bias parameters",
		Long: "adjust applies misclassification correction, stratified pooling, and the\n" +
			"selection and confounding adjustments once. Every bias parameter must be a\n" +
			"fixed value; use pba for distributions.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.resolve(st, cmd.Flags(), nil)
			if err != nil {
				return err
			}
			p := s.analysis.Params
			if !p.Fixed() {
				return usagef("adjust needs fixed bias parameters; run pba for distributions")
			}
			eng, err := engine.New(s.analysis.PBA.Engine, s.data)
			if err != nil {
				return err
			}
			if err := eng.CheckParameters(p); err != nil {
				return err
			}

			seed := s.analysis.PBA.Seed
			if seed == 0 && eng.Config().Mode == engine.ModeRecord {
				if seed, err = randx.NewSeed(); err != nil {
					return err
				}
			}
			scalars := p.Draw(randx.Source(seed, 0, randx.Draw))
			est, err := eng.Estimate(eng.Sample(), scalars, randx.Stream(seed, 0, randx.Impute))
			if err != nil {
				return err
			}
			s.logger.Info("adjust_done",
				slog.Float64("observed", est.Observed),
				slog.Float64("estimate", est.Corrected),
				slog.Int("strata", len(est.Strata)),
			)

			id, err := s.save(cmd.Context(), storage.Run{
				Command:  "adjust",
				Seed:     seed,
				Observed: est.Observed,
				Point:    est.Corrected,
				Low:      math.NaN(),
				High:     math.NaN(),
				Level:    math.NaN(),
				Used:     1,
			}, nil)
			if err != nil {
				return err
			}
			m := s.meta()
			m.RunID = id
			return s.write(st.stdout, output.ToAPIAdjust(m, est))
		},
	}
	f.register(cmd.Flags())
	return cmd
}
