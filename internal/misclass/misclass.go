// Package misclass corrects 2×2 tables for non-differential or differential
// misclassification given sensitivity and specificity, and derives the
// predictive values used for record-level imputation.
//
// Corrected cells are never clipped. Bias parameters that do not fit the
// observed counts show up as negative cells, and hiding them would hide the
// mis-specification; see NegativePolicy.
package misclass

import (
	"math"

	"qba/internal/qbaerr"
	"qba/internal/table"
)

// Classification holds sensitivity and specificity per group. For outcome
// misclassification the index is the exposure (1 exposed, 0 unexposed); for
// exposure misclassification it is the outcome (1 cases, 0 non-cases).
type Classification struct {
	Sens1, Sens0 float64
	Spec1, Spec0 float64
}

// Perfect is error-free classification.
var Perfect = Classification{Sens1: 1, Sens0: 1, Spec1: 1, Spec0: 1}

// Validate checks that every value is a probability.
func (c Classification) Validate() error {
	for _, v := range [...]struct {
		name string
		v    float64
	}{{"sens1", c.Sens1}, {"sens0", c.Sens0}, {"spec1", c.Spec1}, {"spec0", c.Spec0}} {
		if math.IsNaN(v.v) || v.v < 0 || v.v > 1 {
			return qbaerr.Newf("misclass.classification", qbaerr.KindInvalidParameter, "%s must be a probability in [0,1], got %v", v.name, v.v)
		}
	}
	return nil
}

// youden returns sens+spec-1, or a DegenerateCorrection error when it is not
// strictly positive: such a classifier carries no information separating true
// from false positives.
func youden(op, group string, sens, spec float64) (float64, error) {
	j := sens + spec - 1
	if !(j > 0) {
		return 0, qbaerr.Newf(op, qbaerr.KindDegenerateCorrection, "%s: sensitivity+specificity-1 = %g must be > 0", group, j)
	}
	return j, nil
}

// CorrectOutcome returns the table of true outcome counts implied by an
// observed table t whose outcome is misclassified:
//
//	A = (a - (a+c)(1-spec1)) / (sens1+spec1-1)
//	B = (b - (b+d)(1-spec0)) / (sens0+spec0-1)
//	C = (a+c) - A
//	D = (b+d) - B
//
// The exposure margins a+c and b+d are preserved.
func CorrectOutcome(t table.Table, c Classification) (table.Table, error) {
	const op = "misclass.correct_outcome"
	if err := c.Validate(); err != nil {
		return table.Table{}, err
	}
	j1, err := youden(op, "exposed", c.Sens1, c.Spec1)
	if err != nil {
		return table.Table{}, err
	}
	j0, err := youden(op, "unexposed", c.Sens0, c.Spec0)
	if err != nil {
		return table.Table{}, err
	}

	n1 := t.A + t.C
	n0 := t.B + t.D
	a := (t.A - n1*(1-c.Spec1)) / j1
	b := (t.B - n0*(1-c.Spec0)) / j0
	return table.Table{A: a, B: b, C: n1 - a, D: n0 - b}, nil
}

// CorrectExposure is the exposure-misclassification counterpart of
// CorrectOutcome: the correction runs within outcome rows, index 1 for cases
// and 0 for non-cases, and preserves the row margins a+b and c+d.
func CorrectExposure(t table.Table, c Classification) (table.Table, error) {
	const op = "misclass.correct_exposure"
	if err := c.Validate(); err != nil {
		return table.Table{}, err
	}
	j1, err := youden(op, "cases", c.Sens1, c.Spec1)
	if err != nil {
		return table.Table{}, err
	}
	j0, err := youden(op, "non-cases", c.Sens0, c.Spec0)
	if err != nil {
		return table.Table{}, err
	}

	m1 := t.A + t.B
	m0 := t.C + t.D
	a := (t.A - m1*(1-c.Spec1)) / j1
	cc := (t.C - m0*(1-c.Spec0)) / j0
	return table.Table{A: a, B: m1 - a, C: cc, D: m0 - cc}, nil
}

// PV holds exposure-specific predictive values of the observed outcome.
type PV struct {
	PPV1, PPV0 float64
	NPV1, NPV0 float64
}

// PositiveFor returns the PPV for exposure group e.
func (p PV) PositiveFor(e int8) float64 {
	if e == 1 {
		return p.PPV1
	}
	return p.PPV0
}

// NegativeFor returns the NPV for exposure group e.
func (p PV) NegativeFor(e int8) float64 {
	if e == 1 {
		return p.NPV1
	}
	return p.NPV0
}

// PredictiveValues derives predictive values from a table corrected by
// CorrectOutcome and the observed table it came from:
//
//	PPV1 = sens1·A/a   PPV0 = sens0·B/b
//	NPV1 = spec1·C/c   NPV0 = spec0·D/d
//
// A zero observed cell leaves its predictive value undefined.
func PredictiveValues(corrected, observed table.Table, c Classification) (PV, error) {
	const op = "misclass.predictive_values"
	cells := [...]struct {
		name string
		v    float64
	}{{"a", observed.A}, {"b", observed.B}, {"c", observed.C}, {"d", observed.D}}
	for _, cell := range cells {
		if cell.v == 0 {
			return PV{}, qbaerr.Newf(op, qbaerr.KindDivisionByZero, "observed cell %s is zero", cell.name)
		}
	}
	return PV{
		PPV1: c.Sens1 * corrected.A / observed.A,
		PPV0: c.Sens0 * corrected.B / observed.B,
		NPV1: c.Spec1 * corrected.C / observed.C,
		NPV0: c.Spec0 * corrected.D / observed.D,
	}, nil
}

// NegativePolicy decides what happens to corrected tables with negative cells.
type NegativePolicy int

const (
	// Propagate keeps negative cells and lets arithmetic continue.
	Propagate NegativePolicy = iota
	// Reject turns a negative cell into a DegenerateCorrection error.
	Reject
)

func (p NegativePolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseNegativePolicy maps "propagate" / "reject" to a policy. Empty means
// Propagate.
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch s {
	case "", "propagate":
		return Propagate, nil
	case "reject":
		return Reject, nil
	default:
		return 0, qbaerr.Newf("misclass.parse_negative_policy", qbaerr.KindInvalidParameter, "unknown negative policy %q (want propagate|reject)", s)
	}
}

// Check applies p to a corrected table.
func Check(t table.Table, p NegativePolicy) error {
	if p == Reject && t.HasNegative() {
		return qbaerr.Newf("misclass.check", qbaerr.KindDegenerateCorrection, "negative corrected count in %s", t)
	}
	return nil
}
