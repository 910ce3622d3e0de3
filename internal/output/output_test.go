package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qba/internal/bias"
	"qba/internal/engine"
	"qba/internal/params"
	"qba/internal/pba"
	"qba/internal/qbaerr"
	"qba/internal/storage"
	"qba/internal/sweep"
	"qba/internal/table"
	"qba/pkg/api"
)

var meta = Meta{Dataset: "cohort.csv", Measure: "or", Mode: "table", Params: []string{"selection.s11=0.5"}}

func TestToAPIAdjust(t *testing.T) {
	est := engine.Estimate{
		Observed:        1.65,
		Corrected:       1.98,
		Strata:          table.Strata{{Key: table.AllKey, Table: table.Table{A: 165, B: 100, C: 1000, D: 1000}}},
		CorrectedStrata: table.Strata{{Key: table.AllKey, Table: table.Table{A: 165, B: 100, C: 1000, D: 1000}}},
	}
	v := ToAPIAdjust(meta, est)
	assert.Equal(t, api.Version, v.Schema)
	require.NotNil(t, v.Estimate)
	assert.Equal(t, 1.98, *v.Estimate)
	require.Len(t, v.Strata, 1)
	require.NotNil(t, v.Strata[0].Corrected)
	assert.Equal(t, 165.0, v.Strata[0].Observed.A)

	var buf bytes.Buffer
	require.NoError(t, WriteAdjustText(&buf, v))
	assert.Contains(t, buf.String(), "estimate:\t1.98\n")
	assert.Contains(t, buf.String(), "param:\tselection.s11=0.5\n")
}

func TestToAPIResultUndefinedObservedIsNull(t *testing.T) {
	res := &pba.Result{
		Seed: 42, Observed: math.NaN(), Point: 2, Low: 1.5, High: 2.5, Level: 0.95,
		Used: 3, Excluded: 1, Exclusions: map[qbaerr.Kind]int{qbaerr.KindDegenerateCorrection: 1},
		Elapsed: 1500 * time.Millisecond,
	}
	v := ToAPIResult(meta, res)
	assert.Nil(t, v.Observed)
	assert.Equal(t, 4, v.Trials)
	assert.Equal(t, 0.25, v.ExcludedFraction)
	assert.Equal(t, int64(1500), v.ElapsedMillis)

	var buf bytes.Buffer
	require.NoError(t, WriteResultJSON(&buf, v))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Nil(t, decoded["observed"])
	assert.Equal(t, 2.0, decoded["point_estimate"])
	assert.Equal(t, map[string]any{"degenerate_correction": 1.0}, decoded["exclusions"])

	buf.Reset()
	require.NoError(t, WriteResultText(&buf, v))
	assert.Contains(t, buf.String(), "observed:\tNA\n")
	assert.Contains(t, buf.String(), "excluded:\tdegenerate_correction\t1\n")
}

func TestToAPITrial(t *testing.T) {
	ok := ToAPITrial(pba.Trial{Index: 3, Params: params.Scalars{Selection: &bias.Selection{S11: 0.5, S01: 1, S10: 1, S00: 1}}, Observed: 1, Estimate: 2})
	assert.Equal(t, 3, ok.Trial)
	assert.Equal(t, 0.5, ok.Params["selection.s11"])
	require.NotNil(t, ok.Estimate)
	assert.Empty(t, ok.Kind)

	bad := ToAPITrial(pba.Trial{Index: 4, Estimate: math.NaN(), Err: qbaerr.New("x", qbaerr.KindUndefinedAdjustment, "boom")})
	assert.Nil(t, bad.Estimate)
	assert.Equal(t, "undefined_adjustment", bad.Kind)
	assert.True(t, math.IsNaN(TrialEstimate(pba.Trial{Estimate: 1, Err: errors.New("x")})))
}

func TestSweepText(t *testing.T) {
	g := sweep.Grid{Axes: []sweep.Axis{{Name: "selection.s11", Values: []float64{0.4, 0.5}}}}
	cells := []sweep.Cell{
		{Index: 0, Values: []float64{0.4}, Estimate: 2.4},
		{Index: 1, Values: []float64{0.5}, Estimate: math.NaN(), Err: qbaerr.New("x", qbaerr.KindUndefinedAdjustment, "zero")},
	}
	v := ToAPISweep(meta, g, cells)
	assert.Equal(t, []string{"selection.s11"}, v.Axes)

	var buf bytes.Buffer
	require.NoError(t, WriteSweepText(&buf, v, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "index\tselection.s11\testimate\tkind", lines[0])
	assert.Equal(t, "0\t0.4\t2.4\t-", lines[1])
	assert.Equal(t, "1\t0.5\tNA\tundefined_adjustment", lines[2])
}

func TestFinite(t *testing.T) {
	assert.Nil(t, Finite(math.Inf(1)))
	require.NotNil(t, Finite(0))
	assert.Equal(t, 0.0, *Finite(0))
}

func TestRunsText(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := ToAPIRun(storage.Run{ID: "r1", Command: "adjust", CreatedAt: created, Dataset: "d.csv", Observed: 1.65, Point: 1.98, Low: math.NaN(), High: math.NaN(), Level: math.NaN()}, nil)
	assert.Nil(t, v.Low)
	assert.Equal(t, "2026-03-01T12:00:00Z", v.CreatedAt)

	var buf bytes.Buffer
	require.NoError(t, WriteRunsText(&buf, []api.RunV1{v}, true))
	assert.Equal(t, RunsTSVHeader+"\nr1\tadjust\t2026-03-01T12:00:00Z\td.csv\t1.65\t1.98\tNA\tNA\n", buf.String())
}
