package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qba/pkg/api"
)

// writeCSV writes a dataset with columns a,y whose 2x2 table is a,b,c,d.
func writeCSV(t *testing.T, dir string, a, b, c, d int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("a,y\n")
	for _, row := range []struct {
		n    int
		line string
	}{{a, "1,1\n"}, {b, "0,1\n"}, {c, "1,0\n"}, {d, "0,0\n"}} {
		for i := 0; i < row.n; i++ {
			sb.WriteString(row.line)
		}
	}
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func run(t *testing.T, argv ...string) (int, string, string) {
	t.Helper()
	var out, errBuf bytes.Buffer
	code := RunContext(context.Background(), argv, &out, &errBuf)
	return code, out.String(), errBuf.String()
}

var selectionSet = []string{
	"--set", "selection.s11=0.5", "--set", "selection.s01=0.6",
	"--set", "selection.s10=0.8", "--set", "selection.s00=0.8",
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "qba version "))
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	ds := writeCSV(t, dir, 1, 1, 1, 1)

	cases := []struct {
		name string
		argv []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"adjust", "--nope"}},
		{"extra argument", []string{"adjust", "-d", ds, "extra"}},
		{"no dataset", []string{"adjust"}},
		{"missing dataset file", []string{"adjust", "-d", filepath.Join(dir, "missing.csv")}},
		{"bad set", []string{"adjust", "-d", ds, "--set", "selection.s11"}},
		{"unknown parameter", []string{"adjust", "-d", ds, "--set", "selection.s12=1"}},
		{"bad measure", []string{"adjust", "-d", ds, "--measure", "hr"}},
		{"bad format", []string{"adjust", "-d", ds, "-o", "xml"}},
		{"bad policy", []string{"pba", "-d", ds, "--policy", "loose"}},
		{"bad trials", []string{"pba", "-d", ds, "-n", "0"}},
		{"sweep without axes", []string{"sweep", "-d", ds}},
		{"runs without db", []string{"runs", "list"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := run(t, tc.argv...)
			assert.Equal(t, exitUsage, code, stderr)
			assert.Contains(t, stderr, "qba: ")
		})
	}
}

func TestAdjustSelectionScenario(t *testing.T) {
	dir := t.TempDir()
	ds := writeCSV(t, dir, 165, 100, 1000, 1000)

	code, out, stderr := run(t, append([]string{"adjust", "-d", ds, "-o", "json"}, selectionSet...)...)
	require.Equal(t, 0, code, stderr)

	var v api.AdjustV1
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.NotNil(t, v.Estimate)
	require.NotNil(t, v.Observed)
	assert.InDelta(t, 1.98, *v.Estimate, 1e-9)
	assert.InDelta(t, 1.65, *v.Observed, 1e-9)
	assert.Equal(t, "or", v.Measure)
	assert.Len(t, v.Params, 4)
}

func TestAdjustTextOutput(t *testing.T) {
	ds := writeCSV(t, t.TempDir(), 165, 100, 1000, 1000)
	code, out, _ := run(t, append([]string{"adjust", "-d", ds}, selectionSet...)...)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "estimate:\t1.98\n")
	assert.Contains(t, out, "observed:\t1.65\n")
}

func TestAdjustUndefinedExit4(t *testing.T) {
	ds := writeCSV(t, t.TempDir(), 10, 10, 10, 10)
	code, _, stderr := run(t, "adjust", "-d", ds, "--set", "selection.s11=0")
	assert.Equal(t, exitUndefined, code)
	assert.Contains(t, stderr, "undefined_adjustment")
}

func TestAdjustRejectsDistributions(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, 10, 10, 10, 10)
	cfg := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("dataset: data.csv\nselection: {s11: {uniform: [0.4, 0.6]}, s01: 1, s10: 1, s00: 1}\n"), 0o644))

	code, _, stderr := run(t, "adjust", "-c", cfg)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "pba")
}

func pbaConfig(t *testing.T, dir string) string {
	t.Helper()
	writeCSV(t, dir, 100, 50, 900, 950)
	cfg := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`dataset: data.csv
pba: {trials: 200, seed: 42}
classification:
  sens1: {triangular: [0.75, 0.8, 0.85]}
  sens0: {triangular: [0.75, 0.8, 0.85]}
  spec1: {uniform: [0.97, 1.0]}
  spec0: {uniform: [0.97, 1.0]}
selection: {s11: {triangular: [0.4, 0.5, 0.6]}, s01: 0.6, s10: 0.8, s00: 0.8}
`), 0o644))
	return cfg
}

func TestPBADeterministicAcrossWorkers(t *testing.T) {
	cfg := pbaConfig(t, t.TempDir())

	var got []api.ResultV1
	for _, workers := range []string{"1", "4"} {
		code, out, stderr := run(t, "pba", "-c", cfg, "-o", "json", "-j", workers)
		require.Equal(t, 0, code, stderr)
		var v api.ResultV1
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		got = append(got, v)
	}
	assert.Equal(t, uint64(42), got[0].Seed)
	assert.Equal(t, 200, got[0].Trials)
	assert.Equal(t, got[0].PointEstimate, got[1].PointEstimate)
	assert.Equal(t, got[0].CILow, got[1].CILow)
	assert.Equal(t, got[0].CIHigh, got[1].CIHigh)
	assert.Less(t, got[0].CILow, got[0].CIHigh)
}

func TestPBAFlagsOverrideFile(t *testing.T) {
	cfg := pbaConfig(t, t.TempDir())
	code, out, stderr := run(t, "pba", "-c", cfg, "-o", "json", "-n", "30", "--seed", "7", "--level", "0.8")
	require.Equal(t, 0, code, stderr)
	var v api.ResultV1
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, 30, v.Trials)
	assert.Equal(t, uint64(7), v.Seed)
	assert.Equal(t, 0.8, v.Level)
}

func TestPBAEnvDefaults(t *testing.T) {
	t.Setenv("QBA_TRIALS", "25")
	ds := writeCSV(t, t.TempDir(), 100, 50, 900, 950)
	code, out, stderr := run(t, "pba", "-d", ds, "-o", "json", "--seed", "1")
	require.Equal(t, 0, code, stderr)
	var v api.ResultV1
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, 25, v.Trials)
}

func TestPBAArtifactsAndRuns(t *testing.T) {
	dir := t.TempDir()
	cfg := pbaConfig(t, dir)
	trials := filepath.Join(dir, "trials.jsonl")
	prom := filepath.Join(dir, "qba.prom")
	db := filepath.Join(dir, "runs.db")

	code, out, stderr := run(t, "pba", "-c", cfg, "-o", "json", "-n", "40",
		"--trials-out", trials, "--metrics-out", prom, "--db", db)
	require.Equal(t, 0, code, stderr)
	var res api.ResultV1
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.RunID)

	b, err := os.ReadFile(trials)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(b)), "\n"), 40)

	b, err = os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(b), "qba_pba_trials_total")

	code, out, stderr = run(t, "runs", "list", "--db", db, "-o", "json")
	require.Equal(t, 0, code, stderr)
	var runs []api.RunV1
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, "pba", runs[0].Command)

	code, out, stderr = run(t, "runs", "show", res.RunID, "--db", db, "-o", "json")
	require.Equal(t, 0, code, stderr)
	var shown api.RunV1
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Len(t, shown.Trials, 40)

	code, _, _ = run(t, "runs", "show", "nope", "--db", db)
	assert.Equal(t, exitUsage, code)
}

func TestPBAStrictFailureExit4(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, 100, 50, 900, 950)
	cfg := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`dataset: data.csv
pba: {trials: 50, seed: 3, policy: strict}
classification: {sens1: {uniform: [0, 1]}, sens0: 1, spec1: 0.5, spec0: 1}
`), 0o644))

	code, _, stderr := run(t, "pba", "-c", cfg)
	assert.Equal(t, exitUndefined, code)
	assert.Contains(t, stderr, "trial ")
}

func TestSweepGrid(t *testing.T) {
	ds := writeCSV(t, t.TempDir(), 165, 100, 1000, 1000)
	code, out, stderr := run(t, append([]string{"sweep", "-d", ds,
		"--axis", "selection.s11=0,0.5", "--axis", "confounding.rr_uy=1,2"}, selectionSet[2:]...)...)
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "index\tselection.s11\tconfounding.rr_uy\testimate\tkind", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "\tNA\tundefined_adjustment"), lines[1])
	assert.Equal(t, fmt.Sprintf("2\t0.5\t1\t%s\t-", "1.98"), lines[3])
}
