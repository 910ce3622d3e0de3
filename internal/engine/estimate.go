// internal/engine/estimate.go
package engine

import "qba/internal/table"

// Estimate is the outcome of one pass through the engine.
type Estimate struct {
	// Observed is the pooled ratio of the analysed records before any
	// correction.
	Observed float64
	// Corrected is the ratio after every configured correction.
	Corrected float64

	// Strata are the observed tables; CorrectedStrata the tables the
	// corrected ratio was pooled from (equal to Strata when no
	// misclassification correction ran).
	Strata          table.Strata
	CorrectedStrata table.Strata
}
