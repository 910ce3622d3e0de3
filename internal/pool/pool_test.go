package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qba/internal/qbaerr"
	"qba/internal/table"
)

func TestMantelHaenszel_SingleStratumReduces(t *testing.T) {
	tb := table.Table{A: 113.92405, B: 50, C: 886.07595, D: 950}

	got, err := MantelHaenszel([]table.Table{tb})
	require.NoError(t, err)
	assert.Equal(t, tb.OddsRatio(), got)

	rr, err := MantelHaenszelRR([]table.Table{tb})
	require.NoError(t, err)
	assert.InDelta(t, tb.RiskRatio(), rr, 1e-12)
}

func TestMantelHaenszel_KnownValue(t *testing.T) {
	strata := []table.Table{
		{A: 10, B: 20, C: 30, D: 40},
		{A: 5, B: 5, C: 15, D: 25},
	}
	// (10·40/100 + 5·25/50) / (20·30/100 + 5·15/50) = 6.5 / 7.5
	got, err := MantelHaenszel(strata)
	require.NoError(t, err)
	assert.InDelta(t, 6.5/7.5, got, 1e-12)

	// (10·60/100 + 5·30/50) / (20·40/100 + 5·20/50) = 9 / 10
	rr, err := MantelHaenszelRR(strata)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, rr, 1e-12)
}

func TestMantelHaenszel_OrderIndependent(t *testing.T) {
	strata := []table.Table{
		{A: 12, B: 7, C: 88, D: 93},
		{A: 30, B: 11, C: 170, D: 189},
		{A: 4, B: 2, C: 46, D: 48},
	}
	reversed := []table.Table{strata[2], strata[1], strata[0]}

	a, err := MantelHaenszel(strata)
	require.NoError(t, err)
	b, err := MantelHaenszel(reversed)
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-12)
}

func TestMantelHaenszel_HomogeneousStrata(t *testing.T) {
	// Two strata with OR = 2 each pool to 2.
	strata := []table.Table{
		{A: 20, B: 10, C: 80, D: 80},
		{A: 40, B: 20, C: 60, D: 60},
	}
	got, err := Pool(strata, OddsRatio)
	require.NoError(t, err)
	assert.InDelta(t, 2, got, 1e-12)
}

func TestMantelHaenszel_Undefined(t *testing.T) {
	_, err := MantelHaenszel(nil)
	assert.ErrorIs(t, err, qbaerr.ErrUndefinedPooling)

	_, err = MantelHaenszel([]table.Table{{A: 5, B: 0, C: 5, D: 5}, {A: 3, B: 2, C: 0, D: 1}})
	assert.ErrorIs(t, err, qbaerr.ErrUndefinedPooling)

	_, err = MantelHaenszel([]table.Table{{}})
	assert.ErrorIs(t, err, qbaerr.ErrUndefinedPooling)
}

func TestMantelHaenszel_SkipsEmptyStrata(t *testing.T) {
	tb := table.Table{A: 10, B: 20, C: 30, D: 40}
	got, err := MantelHaenszel([]table.Table{{}, tb})
	require.NoError(t, err)
	assert.Equal(t, tb.OddsRatio(), got)
}

func TestCrude(t *testing.T) {
	strata := []table.Table{
		{A: 10, B: 20, C: 30, D: 40},
		{A: 5, B: 5, C: 15, D: 25},
	}
	got, err := Crude(strata, OddsRatio)
	require.NoError(t, err)
	assert.InDelta(t, (15.0*65)/(25*45), got, 1e-12)
}

func TestParseMeasure(t *testing.T) {
	m, err := ParseMeasure("rr")
	require.NoError(t, err)
	assert.Equal(t, RiskRatio, m)
	assert.Equal(t, "or", OddsRatio.String())

	_, err = ParseMeasure("hr")
	assert.ErrorIs(t, err, qbaerr.ErrInvalidParameter)
}
