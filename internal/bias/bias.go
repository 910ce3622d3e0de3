// Package bias implements the closed-form selection and confounding
// adjustments of a summary ratio.
//
// Both ratio formulas are rare-outcome approximations: they hold when odds
// ratios approximate risk ratios. Nothing in the inputs reveals whether that
// is the case, so applicability is the caller's call.
package bias

import (
	"math"

	"qba/internal/qbaerr"
	"qba/internal/table"
)

// Selection holds P(selected | exposure, outcome). The first digit is the
// exposure, the second the outcome: S10 is exposed without the outcome.
type Selection struct {
	S11, S01, S10, S00 float64
}

// Validate checks that every probability lies in [0, 1].
func (s Selection) Validate() error {
	return probabilities("bias.selection",
		named{"s11", s.S11}, named{"s01", s.S01}, named{"s10", s.S10}, named{"s00", s.S00})
}

// Confounding describes an unmeasured binary confounder U.
type Confounding struct {
	PU1  float64 // P(U=1 | exposed)
	PU0  float64 // P(U=1 | unexposed)
	RRUY float64 // U → outcome risk ratio
}

// Validate checks the prevalences and that RRUY is a positive ratio.
func (c Confounding) Validate() error {
	if err := probabilities("bias.confounding", named{"pu1", c.PU1}, named{"pu0", c.PU0}); err != nil {
		return err
	}
	if !(c.RRUY > 0) || math.IsInf(c.RRUY, 0) {
		return qbaerr.Newf("bias.confounding", qbaerr.KindInvalidParameter, "rr_uy must be a positive finite ratio, got %v", c.RRUY)
	}
	return nil
}

// AdjustSelection returns observed × (S01·S10)/(S00·S11).
//
// Equal selection probabilities leave the ratio unchanged. Any zero
// probability makes the adjustment undefined, including S01 or S10 where the
// product would otherwise collapse to 0: a cell that is never selected carries
// no information about its source-population count.
func AdjustSelection(observed float64, s Selection) (float64, error) {
	const op = "bias.adjust_selection"
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if err := s.nonZero(op); err != nil {
		return 0, err
	}
	return observed * (s.S01 * s.S10) / (s.S00 * s.S11), nil
}

// nonZero rejects a selection with any zero probability.
func (s Selection) nonZero(op string) error {
	for _, p := range []named{{"s11", s.S11}, {"s01", s.S01}, {"s10", s.S10}, {"s00", s.S00}} {
		if p.v == 0 {
			return qbaerr.Newf(op, qbaerr.KindUndefinedAdjustment, "selection probability %s is zero", p.name)
		}
	}
	return nil
}

// AdjustConfounding returns ratio × (1+P0(RR-1)) / (1+P1(RR-1)).
func AdjustConfounding(ratio float64, c Confounding) (float64, error) {
	const op = "bias.adjust_confounding"
	if err := c.Validate(); err != nil {
		return 0, err
	}
	den := 1 + c.PU1*(c.RRUY-1)
	if den == 0 {
		return 0, qbaerr.New(op, qbaerr.KindUndefinedAdjustment, "bias factor denominator is zero")
	}
	return ratio * (1 + c.PU0*(c.RRUY-1)) / den, nil
}

// BiasFactor returns the confounding bias factor (1+P1(RR-1)) / (1+P0(RR-1))
// by which the observed ratio is inflated.
func BiasFactor(c Confounding) (float64, error) {
	adj, err := AdjustConfounding(1, c)
	if err != nil {
		return 0, err
	}
	if adj == 0 {
		return 0, qbaerr.New("bias.bias_factor", qbaerr.KindUndefinedAdjustment, "bias factor is infinite")
	}
	return 1 / adj, nil
}

// CorrectSelectionTable reweights each observed cell by the inverse of its
// selection probability, giving the expected source-population table. It
// rejects zero probabilities with the same rule as AdjustSelection.
func CorrectSelectionTable(t table.Table, s Selection) (table.Table, error) {
	const op = "bias.correct_selection_table"
	if err := s.Validate(); err != nil {
		return table.Table{}, err
	}
	if err := s.nonZero(op); err != nil {
		return table.Table{}, err
	}
	return table.Table{
		A: t.A / s.S11,
		B: t.B / s.S01,
		C: t.C / s.S10,
		D: t.D / s.S00,
	}, nil
}

type named struct {
	name string
	v    float64
}

func probabilities(op string, vals ...named) error {
	for _, p := range vals {
		if math.IsNaN(p.v) || p.v < 0 || p.v > 1 {
			return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "%s must be a probability in [0,1], got %v", p.name, p.v)
		}
	}
	return nil
}
