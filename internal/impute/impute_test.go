package impute

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qba/internal/dataset"
	"qba/internal/misclass"
	"qba/internal/qbaerr"
	"qba/internal/table"
)

func records(a, b, c, d int) []dataset.Record {
	out := make([]dataset.Record, 0, a+b+c+d)
	add := func(n int, e, y int8) {
		for i := 0; i < n; i++ {
			out = append(out, dataset.Record{A: e, Y: dataset.Missing, MY: y, S: dataset.Missing})
		}
	}
	add(a, 1, 1)
	add(b, 0, 1)
	add(c, 1, 0)
	add(d, 0, 0)
	return out
}

func observed(r dataset.Record) int8 { return r.MY }

func allStratum(dataset.Record) (string, bool) { return table.AllKey, true }

func TestProbability(t *testing.T) {
	pv := misclass.PV{PPV1: 0.9, PPV0: 0.8, NPV1: 0.95, NPV0: 0.99}

	p, err := Probability(1, 1, pv)
	require.NoError(t, err)
	assert.Equal(t, 0.9, p)

	p, err = Probability(0, 0, pv)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, p, 1e-12)

	_, err = Probability(1, 1, misclass.PV{PPV1: 1.2})
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)

	_, err = Probability(1, 0, misclass.PV{NPV1: 1.5})
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)
}

func TestOutcome_Extremes(t *testing.T) {
	src := rand.New(rand.NewPCG(3, 4))
	certain := misclass.PV{PPV1: 1, PPV0: 1, NPV1: 1, NPV0: 1}
	r := dataset.Record{A: 1}
	for i := 0; i < 100; i++ {
		y, err := Outcome(r, 1, certain, src)
		require.NoError(t, err)
		assert.Equal(t, int8(1), y)

		y, err = Outcome(r, 0, certain, src)
		require.NoError(t, err)
		assert.Equal(t, int8(0), y)
	}
}

func TestRecords_MatchesCorrectedTableInExpectation(t *testing.T) {
	recs := records(100, 50, 900, 950)
	obs := table.Table{A: 100, B: 50, C: 900, D: 950}
	c := misclass.Classification{Sens1: 0.8, Spec1: 0.99, Sens0: 0.9, Spec0: 0.97}

	corr, err := misclass.CorrectOutcome(obs, c)
	require.NoError(t, err)
	pv, err := misclass.PredictiveValues(corr, obs, c)
	require.NoError(t, err)
	pvs := map[string]misclass.PV{table.AllKey: pv}

	const reps = 200
	src := rand.New(rand.NewPCG(11, 12))
	var sum table.Table
	for i := 0; i < reps; i++ {
		out, err := Records(recs, pvs, observed, allStratum, src)
		require.NoError(t, err)
		st := table.FromRecords(out, nil, nil, func(r dataset.Record) int8 { return r.Y })
		require.Len(t, st, 1)
		sum = sum.Add(st[0].Table)
	}

	assert.InDelta(t, corr.A, sum.A/reps, 2)
	assert.InDelta(t, corr.B, sum.B/reps, 2)
	assert.InDelta(t, corr.C, sum.C/reps, 2)
	assert.InDelta(t, corr.D, sum.D/reps, 2)
}

func TestRecords_Deterministic(t *testing.T) {
	recs := records(10, 10, 40, 40)
	pvs := map[string]misclass.PV{table.AllKey: {PPV1: 0.7, PPV0: 0.6, NPV1: 0.9, NPV0: 0.8}}

	a, err := Records(recs, pvs, observed, allStratum, rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)
	b, err := Records(recs, pvs, observed, allStratum, rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Input is left untouched.
	for _, r := range recs {
		assert.Equal(t, dataset.Missing, r.Y)
	}
}

func TestRecords_UnknownStratumStaysMissing(t *testing.T) {
	recs := records(1, 0, 0, 0)
	out, err := Records(recs, map[string]misclass.PV{}, observed, allStratum, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, dataset.Missing, out[0].Y)
}
