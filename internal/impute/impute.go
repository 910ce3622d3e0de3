// Package impute re-labels records with a true outcome drawn from the
// predictive values of their stratum.
package impute

import (
	"math"

	"qba/internal/dataset"
	"qba/internal/misclass"
	"qba/internal/qbaerr"
)

// Source supplies uniform variates in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Probability returns P(true outcome = 1) for a record with exposure e and
// observed outcome label observed: PPV_e when observed is 1, else 1-NPV_e.
func Probability(e, observed int8, pv misclass.PV) (float64, error) {
	var p float64
	if observed == 1 {
		p = pv.PositiveFor(e)
	} else {
		p = 1 - pv.NegativeFor(e)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, qbaerr.Newf("impute.probability", qbaerr.KindInvalidParameter,
			"P(Y=1 | a=%d, observed=%d) = %g is not a probability", e, observed, p)
	}
	return p, nil
}

// Outcome draws the true outcome of r once: 1 with the probability given by
// Probability, else 0.
func Outcome(r dataset.Record, observed int8, pv misclass.PV, src Source) (int8, error) {
	p, err := Probability(r.A, observed, pv)
	if err != nil {
		return dataset.Missing, err
	}
	if src.Float64() < p {
		return 1, nil
	}
	return 0, nil
}

// Records returns a copy of records with Y replaced by an imputed true
// outcome. label gives the observed outcome of a record and stratum its
// stratum key; records whose stratum has no predictive values, or whose
// observed label is missing, keep Y = Missing.
//
// Records are visited in order and each consumes exactly one variate, so the
// result depends only on the input and the state of src.
func Records(
	records []dataset.Record,
	pvs map[string]misclass.PV,
	label func(dataset.Record) int8,
	stratum func(dataset.Record) (string, bool),
	src Source,
) ([]dataset.Record, error) {
	out := make([]dataset.Record, len(records))
	for i, r := range records {
		out[i] = r
		out[i].Y = dataset.Missing

		obs := label(r)
		key, ok := stratum(r)
		if !ok || obs == dataset.Missing || r.A == dataset.Missing {
			continue
		}
		pv, ok := pvs[key]
		if !ok {
			continue
		}
		y, err := Outcome(r, obs, pv, src)
		if err != nil {
			return nil, err
		}
		out[i].Y = y
	}
	return out, nil
}
