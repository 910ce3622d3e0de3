// internal/engine/engine_test.go
package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qba/internal/bias"
	"qba/internal/dataset"
	"qba/internal/dist"
	"qba/internal/misclass"
	"qba/internal/params"
	"qba/internal/pool"
	"qba/internal/qbaerr"
	"qba/internal/table"
)

// build returns a dataset whose observed outcome (m_y) cross-tabulates to t
// within covariate level x.
func build(ds *dataset.Dataset, x int8, t table.Table) {
	add := func(n float64, a, y int8) {
		for i := 0; i < int(n); i++ {
			ds.Records = append(ds.Records, dataset.Record{A: a, Y: dataset.Missing, MY: y, S: 1, X: []int8{x}})
		}
	}
	add(t.A, 1, 1)
	add(t.B, 0, 1)
	add(t.C, 1, 0)
	add(t.D, 0, 0)
}

func newDataset(strata ...table.Table) *dataset.Dataset {
	ds := &dataset.Dataset{Columns: dataset.Columns{MY: true, S: true}, Covariates: []string{"x"}}
	for i, t := range strata {
		build(ds, int8(i), t)
	}
	return ds
}

func newEngine(t *testing.T, c Config, ds *dataset.Dataset) *Engine {
	t.Helper()
	e, err := New(c, ds)
	require.NoError(t, err)
	return e
}

func TestEstimate_NoBiasIsObserved(t *testing.T) {
	obs := table.Table{A: 100, B: 50, C: 900, D: 950}
	e := newEngine(t, Config{}, newDataset(obs))

	got, err := e.Estimate(e.Sample(), params.Scalars{}, nil)
	require.NoError(t, err)
	assert.Equal(t, obs.OddsRatio(), got.Observed)
	assert.Equal(t, got.Observed, got.Corrected)
	require.Len(t, got.Strata, 1)
	assert.Equal(t, table.AllKey, got.Strata[0].Key)
	assert.Equal(t, obs, got.Strata[0].Table)
}

func TestEstimate_OutcomeMisclassificationTableMode(t *testing.T) {
	obs := table.Table{A: 100, B: 50, C: 900, D: 950}
	e := newEngine(t, Config{}, newDataset(obs))
	c := misclass.Classification{Sens1: 0.8, Spec1: 0.99, Sens0: 1, Spec0: 1}

	got, err := e.Estimate(e.Sample(), params.Scalars{Classification: &params.ClassificationValues{Classification: c}}, nil)
	require.NoError(t, err)

	want, err := misclass.CorrectOutcome(obs, c)
	require.NoError(t, err)
	assert.InDelta(t, want.OddsRatio(), got.Corrected, 1e-12)
	assert.Greater(t, got.Corrected, 0.0)
	assert.Equal(t, want, got.CorrectedStrata[0].Table)
}

func TestEstimate_SelectionScenario(t *testing.T) {
	e := newEngine(t, Config{}, newDataset(table.Table{A: 165, B: 100, C: 1000, D: 1000}))
	s := params.Scalars{Selection: &bias.Selection{S11: 0.5, S01: 0.6, S10: 0.8, S00: 0.8}}

	got, err := e.Estimate(e.Sample(), s, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.65, got.Observed, 1e-12)
	assert.InDelta(t, 1.98, got.Corrected, 1e-12)
}

func TestEstimate_ConfoundingAfterSelection(t *testing.T) {
	e := newEngine(t, Config{}, newDataset(table.Table{A: 165, B: 100, C: 1000, D: 1000}))
	sel := bias.Selection{S11: 0.5, S01: 0.6, S10: 0.8, S00: 0.8}
	conf := bias.Confounding{PU1: 0.4, PU0: 0.2, RRUY: 2}

	got, err := e.Estimate(e.Sample(), params.Scalars{Selection: &sel, Confounding: &conf}, nil)
	require.NoError(t, err)
	want, err := bias.AdjustConfounding(1.98, conf)
	require.NoError(t, err)
	assert.InDelta(t, want, got.Corrected, 1e-9)
}

func TestEstimate_StratifiedPooling(t *testing.T) {
	s0 := table.Table{A: 10, B: 20, C: 30, D: 40}
	s1 := table.Table{A: 5, B: 5, C: 15, D: 25}
	ds := newDataset(s0, s1)

	crude := newEngine(t, Config{}, ds)
	strat := newEngine(t, Config{Covariates: []string{"x"}}, ds)

	c, err := crude.Estimate(crude.Sample(), params.Scalars{}, nil)
	require.NoError(t, err)
	s, err := strat.Estimate(strat.Sample(), params.Scalars{}, nil)
	require.NoError(t, err)

	assert.InDelta(t, s0.Add(s1).OddsRatio(), c.Observed, 1e-12)
	assert.InDelta(t, 6.5/7.5, s.Observed, 1e-12)
	require.Len(t, s.Strata, 2)
	assert.Equal(t, "x=0", s.Strata[0].Key)
	assert.Equal(t, "x=1", s.Strata[1].Key)
}

func TestEstimate_RiskRatio(t *testing.T) {
	obs := table.Table{A: 10, B: 20, C: 30, D: 40}
	e := newEngine(t, Config{Measure: pool.RiskRatio}, newDataset(obs))
	got, err := e.Estimate(e.Sample(), params.Scalars{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, obs.RiskRatio(), got.Observed, 1e-12)
}

func TestEstimate_RecordModePerfectClassificationReproducesObserved(t *testing.T) {
	obs := table.Table{A: 40, B: 25, C: 160, D: 175}
	e := newEngine(t, Config{Mode: ModeRecord}, newDataset(obs))
	s := params.Scalars{Classification: &params.ClassificationValues{Classification: misclass.Perfect}}

	got, err := e.Estimate(e.Sample(), s, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, obs, got.CorrectedStrata[0].Table)
	assert.Equal(t, got.Observed, got.Corrected)
}

func TestEstimate_RecordModeDeterministic(t *testing.T) {
	e := newEngine(t, Config{Mode: ModeRecord}, newDataset(table.Table{A: 100, B: 50, C: 900, D: 950}))
	s := params.Scalars{Classification: &params.ClassificationValues{
		Classification: misclass.Classification{Sens1: 0.8, Spec1: 0.99, Sens0: 0.9, Spec0: 0.99},
	}}

	a, err := e.Estimate(e.Sample(), s, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	b, err := e.Estimate(e.Sample(), s, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	assert.Equal(t, a.Corrected, b.Corrected)
	assert.Equal(t, 2000.0, a.CorrectedStrata.Collapse().N())
}

func TestEstimate_Errors(t *testing.T) {
	e := newEngine(t, Config{Negative: misclass.Reject}, newDataset(table.Table{A: 5, B: 20, C: 995, D: 980}))

	cases := []struct {
		name string
		s    params.Scalars
		kind qbaerr.Kind
	}{
		{
			name: "degenerate classification",
			s:    params.Scalars{Classification: &params.ClassificationValues{Classification: misclass.Classification{Sens1: 0.5, Spec1: 0.5, Sens0: 1, Spec0: 1}}},
			kind: qbaerr.KindDegenerateCorrection,
		},
		{
			name: "negative cell rejected",
			s:    params.Scalars{Classification: &params.ClassificationValues{Classification: misclass.Classification{Sens1: 0.9, Spec1: 0.98, Sens0: 0.9, Spec0: 0.98}}},
			kind: qbaerr.KindDegenerateCorrection,
		},
		{
			name: "zero selection probability",
			s:    params.Scalars{Selection: &bias.Selection{S11: 0, S01: 1, S10: 1, S00: 1}},
			kind: qbaerr.KindUndefinedAdjustment,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Estimate(e.Sample(), tc.s, nil)
			require.Error(t, err)
			assert.Equal(t, tc.kind, qbaerr.KindOf(err))
		})
	}

	_, err := e.Estimate(nil, params.Scalars{}, nil)
	assert.ErrorIs(t, err, qbaerr.ErrUndefinedPooling)
}

func TestNew_UnknownCovariate(t *testing.T) {
	_, err := New(Config{Covariates: []string{"z"}}, newDataset(table.Table{A: 1, B: 1, C: 1, D: 1}))
	assert.ErrorIs(t, err, qbaerr.ErrSchema)
}

func TestSample_FiltersUnselected(t *testing.T) {
	ds := newDataset(table.Table{A: 10, B: 10, C: 10, D: 10})
	ds.Records[0].S = 0
	e := newEngine(t, Config{}, ds)
	assert.Len(t, e.Sample(), 39)
}

func TestCheckParameters(t *testing.T) {
	ds := newDataset(table.Table{A: 10, B: 10, C: 10, D: 10})
	acc := params.Accuracy{Sens1: dist.Fixed(0.9), Sens0: dist.Fixed(0.9), Spec1: dist.Fixed(0.9), Spec0: dist.Fixed(0.9)}

	rec := newEngine(t, Config{Mode: ModeRecord}, ds)
	err := rec.CheckParameters(params.Parameters{Classification: &params.Classification{Target: params.Exposure, Accuracy: acc}})
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)

	tbl := newEngine(t, Config{}, ds)
	assert.NoError(t, tbl.CheckParameters(params.Parameters{Classification: &params.Classification{Target: params.Exposure, Accuracy: acc}}))

	err = tbl.CheckParameters(params.Parameters{Classification: &params.Classification{Accuracy: acc, Strata: map[string]params.Accuracy{"x=1": acc}}})
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)
}

func TestCheckParameters_UnknownStratumKey(t *testing.T) {
	e := newEngine(t, Config{Covariates: []string{"x"}}, newDataset(table.Table{A: 10, B: 10, C: 10, D: 10}))
	acc := params.Accuracy{Sens1: dist.Fixed(1), Sens0: dist.Fixed(1), Spec1: dist.Fixed(1), Spec0: dist.Fixed(1)}
	over := params.Accuracy{Sens1: dist.Fixed(0.8), Sens0: dist.Fixed(1), Spec1: dist.Fixed(0.99), Spec0: dist.Fixed(1)}

	for _, key := range []string{"x=2", "X=1", "z=1", "all"} {
		err := e.CheckParameters(params.Parameters{Classification: &params.Classification{Accuracy: acc, Strata: map[string]params.Accuracy{key: over}}})
		require.Error(t, err, key)
		assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)
		assert.Contains(t, err.Error(), key)
	}
	assert.NoError(t, e.CheckParameters(params.Parameters{Classification: &params.Classification{Accuracy: acc, Strata: map[string]params.Accuracy{"x=1": over}}}))
}

func TestEstimate_StratumOverrideOnly(t *testing.T) {
	s0 := table.Table{A: 10, B: 20, C: 30, D: 40}
	s1 := table.Table{A: 100, B: 50, C: 900, D: 950}
	e := newEngine(t, Config{Covariates: []string{"x"}}, newDataset(s0, s1))
	over := misclass.Classification{Sens1: 0.8, Spec1: 0.99, Sens0: 1, Spec0: 1}
	s := params.Scalars{Classification: &params.ClassificationValues{
		Classification: misclass.Perfect,
		Strata:         map[string]misclass.Classification{"x=1": over},
	}}

	got, err := e.Estimate(e.Sample(), s, nil)
	require.NoError(t, err)
	require.Len(t, got.CorrectedStrata, 2)
	assert.Equal(t, s0, got.CorrectedStrata[0].Table)

	c1 := got.CorrectedStrata[1].Table
	want, err := misclass.CorrectOutcome(s1, over)
	require.NoError(t, err)
	assert.Equal(t, want, c1)
	assert.NotEqual(t, s1, c1)
	assert.InDelta(t, s1.A+s1.C, c1.A+c1.C, 1e-9)
	assert.InDelta(t, s1.B+s1.D, c1.B+c1.D, 1e-9)
	assert.Greater(t, got.Corrected, 0.0)
	assert.NotEqual(t, got.Observed, got.Corrected)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("record")
	require.NoError(t, err)
	assert.Equal(t, ModeRecord, m)
	_, err = ParseMode("rows")
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)
}
