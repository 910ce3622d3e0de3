// Package pool combines per-stratum tables into one ratio with the
// Mantel-Haenszel estimators.
package pool

import (
	"gonum.org/v1/gonum/floats"

	"qba/internal/qbaerr"
	"qba/internal/table"
)

// Measure selects the ratio being pooled.
type Measure int

const (
	OddsRatio Measure = iota
	RiskRatio
)

func (m Measure) String() string {
	switch m {
	case OddsRatio:
		return "or"
	case RiskRatio:
		return "rr"
	default:
		return "unknown"
	}
}

// ParseMeasure maps "or" / "rr" to a Measure. Empty means OddsRatio.
func ParseMeasure(s string) (Measure, error) {
	switch s {
	case "", "or":
		return OddsRatio, nil
	case "rr":
		return RiskRatio, nil
	default:
		return 0, qbaerr.Newf("pool.parse_measure", qbaerr.KindInvalidParameter, "unknown measure %q (want or|rr)", s)
	}
}

// MantelHaenszel returns the Mantel-Haenszel odds ratio
//
//	Σ_k (A_k D_k / N_k) / Σ_k (B_k C_k / N_k)
//
// Strata with N_k = 0 contribute nothing. With a single stratum the result is
// that stratum's A·D/(B·C).
func MantelHaenszel(strata []table.Table) (float64, error) {
	return pooled("pool.mantel_haenszel", strata,
		func(t table.Table) float64 { return t.A * t.D },
		func(t table.Table) float64 { return t.B * t.C },
	)
}

// MantelHaenszelRR returns the Mantel-Haenszel risk ratio
//
//	Σ_k (A_k (B_k+D_k) / N_k) / Σ_k (B_k (A_k+C_k) / N_k)
func MantelHaenszelRR(strata []table.Table) (float64, error) {
	return pooled("pool.mantel_haenszel_rr", strata,
		func(t table.Table) float64 { return t.A * t.Unexposed() },
		func(t table.Table) float64 { return t.B * t.Exposed() },
	)
}

// Pool dispatches to the estimator for m.
func Pool(strata []table.Table, m Measure) (float64, error) {
	if m == RiskRatio {
		return MantelHaenszelRR(strata)
	}
	return MantelHaenszel(strata)
}

// Crude collapses the strata and returns the unstratified ratio for m.
func Crude(strata []table.Table, m Measure) (float64, error) {
	var t table.Table
	for _, s := range strata {
		t = t.Add(s)
	}
	return Pool([]table.Table{t}, m)
}

func pooled(op string, strata []table.Table, num, den func(table.Table) float64) (float64, error) {
	if len(strata) == 0 {
		return 0, qbaerr.New(op, qbaerr.KindUndefinedPooling, "no strata")
	}
	nums := make([]float64, 0, len(strata))
	dens := make([]float64, 0, len(strata))
	var last table.Table
	for _, t := range strata {
		n := t.N()
		if n == 0 {
			continue
		}
		last = t
		nums = append(nums, num(t)/n)
		dens = append(dens, den(t)/n)
	}
	d := floats.Sum(dens)
	if d == 0 {
		return 0, qbaerr.Newf(op, qbaerr.KindUndefinedPooling, "denominator sum is zero across %d strata", len(strata))
	}
	if len(nums) == 1 {
		// One informative stratum: skip the 1/N weights so the result is
		// bit-identical to the unstratified ratio.
		return num(last) / den(last), nil
	}
	return floats.Sum(nums) / d, nil
}
