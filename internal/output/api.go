// internal/output/api.go
package output

import (
	"math"

	"qba/internal/engine"
	"qba/internal/pba"
	"qba/internal/qbaerr"
	"qba/internal/sweep"
	"qba/internal/table"
	"qba/pkg/api"
)

// Meta is the report header shared by every command.
type Meta struct {
	RunID      string
	Dataset    string
	Measure    string
	Mode       string
	Covariates []string
	Params     []string
}

func toAPITable(t table.Table) api.TableV1 {
	return api.TableV1{A: t.A, B: t.B, C: t.C, D: t.D}
}

// ToAPIAdjust converts a single estimate to the stable wire schema (v1).
func ToAPIAdjust(m Meta, est engine.Estimate) api.AdjustV1 {
	v := api.AdjustV1{
		Schema:     api.Version,
		RunID:      m.RunID,
		Dataset:    m.Dataset,
		Measure:    m.Measure,
		Mode:       m.Mode,
		Covariates: append([]string(nil), m.Covariates...),
		Params:     nonNil(m.Params),
		Observed:   Finite(est.Observed),
		Estimate:   Finite(est.Corrected),
	}
	for _, st := range est.Strata {
		s := api.StratumV1{Key: st.Key, Observed: toAPITable(st.Table)}
		if c, ok := est.CorrectedStrata.Lookup(st.Key); ok {
			ct := toAPITable(c.Table)
			s.Corrected = &ct
		}
		v.Strata = append(v.Strata, s)
	}
	return v
}

// ToAPIResult converts a PBA summary to the stable wire schema (v1).
func ToAPIResult(m Meta, res *pba.Result) api.ResultV1 {
	v := api.ResultV1{
		Schema:         api.Version,
		RunID:          m.RunID,
		Dataset:        m.Dataset,
		Measure:        m.Measure,
		Mode:           m.Mode,
		Covariates:     append([]string(nil), m.Covariates...),
		Params:         nonNil(m.Params),
		Seed:           res.Seed,
		Observed:       Finite(res.Observed),
		PointEstimate:  res.Point,
		CILow:          res.Low,
		CIHigh:         res.High,
		Level:          res.Level,
		Trials:         res.Used + res.Excluded,
		TrialsUsed:     res.Used,
		TrialsExcluded: res.Excluded,
		Exclusions:     make(map[string]int, len(res.Exclusions)),
		ElapsedMillis:  res.Elapsed.Milliseconds(),
	}
	for k, n := range res.Exclusions {
		v.Exclusions[string(k)] = n
	}
	if v.Trials > 0 {
		v.ExcludedFraction = float64(res.Excluded) / float64(v.Trials)
	}
	return v
}

// ToAPITrial converts one trial to a JSONL line.
func ToAPITrial(t pba.Trial) api.TrialV1 {
	v := api.TrialV1{
		Trial:    t.Index,
		Params:   t.Params.Values(),
		Observed: Finite(t.Observed),
		Estimate: Finite(t.Estimate),
	}
	if t.Err != nil {
		v.Kind = string(qbaerr.KindOf(t.Err))
		v.Error = t.Err.Error()
		v.Estimate = nil
	}
	return v
}

// ToAPISweep converts sweep cells to the stable wire schema (v1).
func ToAPISweep(m Meta, g sweep.Grid, cells []sweep.Cell) api.SweepV1 {
	v := api.SweepV1{
		Schema:     api.Version,
		RunID:      m.RunID,
		Dataset:    m.Dataset,
		Measure:    m.Measure,
		Mode:       m.Mode,
		Covariates: append([]string(nil), m.Covariates...),
		Params:     nonNil(m.Params),
		Axes:       make([]string, len(g.Axes)),
		Cells:      make([]api.SweepCellV1, len(cells)),
	}
	for i, a := range g.Axes {
		v.Axes[i] = a.Name
	}
	for i, c := range cells {
		cell := api.SweepCellV1{Index: c.Index, Values: make(map[string]float64, len(c.Values)), Estimate: Finite(c.Estimate)}
		for j, x := range c.Values {
			cell.Values[g.Axes[j].Name] = x
		}
		if c.Err != nil {
			cell.Kind = string(qbaerr.KindOf(c.Err))
			cell.Error = c.Err.Error()
			cell.Estimate = nil
		}
		v.Cells[i] = cell
	}
	return v
}

// TrialEstimate returns the stored estimate of t: NaN when excluded.
func TrialEstimate(t pba.Trial) float64 {
	if t.Err != nil {
		return math.NaN()
	}
	return t.Estimate
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return append([]string(nil), v...)
}

