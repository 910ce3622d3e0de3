package engine

import (
	"maps"
	"math"
	"slices"
	"strings"

	"qba/internal/bias"
	"qba/internal/dataset"
	"qba/internal/impute"
	"qba/internal/misclass"
	"qba/internal/params"
	"qba/internal/pool"
	"qba/internal/qbaerr"
	"qba/internal/table"
)

// Mode selects how misclassification is corrected.
type Mode int

const (
	// ModeTable corrects the stratum tables algebraically.
	ModeTable Mode = iota
	// ModeRecord imputes a true outcome per record from predictive values and
	// rebuilds the tables from the imputed labels.
	ModeRecord
)

func (m Mode) String() string {
	if m == ModeRecord {
		return "record"
	}
	return "table"
}

// ParseMode maps "table" / "record" to a Mode. Empty means ModeTable.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "table":
		return ModeTable, nil
	case "record":
		return ModeRecord, nil
	default:
		return 0, qbaerr.Newf("engine.parse_mode", qbaerr.KindInvalidParameter, "unknown mode %q (want table|record)", s)
	}
}

// Config controls a single estimate.
type Config struct {
	Covariates []string // stratification covariates; nil pools nothing
	Measure    pool.Measure
	Mode       Mode
	Negative   misclass.NegativePolicy
}

// Engine computes estimates over one dataset's layout.
type Engine struct {
	cfg    Config
	ds     *dataset.Dataset
	covIdx []int
	sample []dataset.Record
}

// New binds cfg to ds. Every covariate must be a column of ds.
func New(c Config, ds *dataset.Dataset) (*Engine, error) {
	idx := make([]int, len(c.Covariates))
	for i, name := range c.Covariates {
		j := ds.CovariateIndex(name)
		if j < 0 {
			return nil, qbaerr.Newf("engine.new", qbaerr.KindSchema, "covariate %q is not a dataset column", name)
		}
		idx[i] = j
	}
	return &Engine{cfg: c, ds: ds, covIdx: idx, sample: ds.Selected()}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Sample returns the records the analysis runs on: the selected subset of the
// dataset. Callers must not modify it.
func (e *Engine) Sample() []dataset.Record { return e.sample }

// CheckParameters rejects parameter sets this engine cannot apply whatever
// values are drawn.
func (e *Engine) CheckParameters(p params.Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c := p.Classification
	if c == nil {
		return nil
	}
	if e.cfg.Mode == ModeRecord && c.Target != params.Outcome {
		return qbaerr.New("engine.check", qbaerr.KindInvalidParameter, "record-level correction imputes the outcome only; use table mode for exposure misclassification")
	}
	if len(c.Strata) > 0 && len(e.cfg.Covariates) == 0 {
		return qbaerr.New("engine.check", qbaerr.KindInvalidParameter, "per-stratum classification needs stratification covariates")
	}
	for _, key := range slices.Sorted(maps.Keys(c.Strata)) {
		if !table.ValidKey(e.cfg.Covariates, key) {
			return qbaerr.Newf("engine.check", qbaerr.KindInvalidParameter,
				"classification stratum %q is not a level of %s (want e.g. %q)",
				key, strings.Join(e.cfg.Covariates, ","), table.Key(e.cfg.Covariates, make([]int8, len(e.cfg.Covariates))))
		}
	}
	return nil
}

// Estimate runs records through the configured corrections:
//
//  1. stratify by the observed outcome label;
//  2. correct each stratum for misclassification (table or record level);
//  3. pool the strata with Mantel-Haenszel;
//  4. adjust the pooled ratio for selection;
//  5. adjust it for unmeasured confounding.
//
// src is consumed only by record-level imputation.
func (e *Engine) Estimate(records []dataset.Record, s params.Scalars, src impute.Source) (Estimate, error) {
	strata := table.FromRecords(records, e.cfg.Covariates, e.covIdx, e.ds.Observed)
	if len(strata) == 0 {
		return Estimate{}, qbaerr.New("engine.estimate", qbaerr.KindUndefinedPooling, "no record has both exposure and outcome")
	}
	observed, err := pool.Pool(strata.Tables(), e.cfg.Measure)
	if err != nil {
		return Estimate{}, err
	}

	corrected := strata
	if c := s.Classification; c != nil {
		corrected, err = e.correct(records, strata, c, src)
		if err != nil {
			return Estimate{}, err
		}
	}

	ratio, err := pool.Pool(corrected.Tables(), e.cfg.Measure)
	if err != nil {
		return Estimate{}, err
	}
	if s.Selection != nil {
		if ratio, err = bias.AdjustSelection(ratio, *s.Selection); err != nil {
			return Estimate{}, err
		}
	}
	if s.Confounding != nil {
		if ratio, err = bias.AdjustConfounding(ratio, *s.Confounding); err != nil {
			return Estimate{}, err
		}
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return Estimate{}, qbaerr.Newf("engine.estimate", qbaerr.KindUndefinedAdjustment, "adjusted ratio is not finite (%v)", ratio)
	}
	return Estimate{Observed: observed, Corrected: ratio, Strata: strata, CorrectedStrata: corrected}, nil
}

func (e *Engine) correct(records []dataset.Record, strata table.Strata, c *params.ClassificationValues, src impute.Source) (table.Strata, error) {
	out := make(table.Strata, len(strata))
	var pvs map[string]misclass.PV
	if e.cfg.Mode == ModeRecord {
		pvs = make(map[string]misclass.PV, len(strata))
	}
	for i, st := range strata {
		cls := c.For(st.Key)
		var (
			t   table.Table
			err error
		)
		if c.Target == params.Exposure {
			t, err = misclass.CorrectExposure(st.Table, cls)
		} else {
			t, err = misclass.CorrectOutcome(st.Table, cls)
		}
		if err != nil {
			return nil, err
		}
		if err := misclass.Check(t, e.cfg.Negative); err != nil {
			return nil, err
		}
		out[i] = table.Stratum{Key: st.Key, Levels: st.Levels, Table: t}
		if pvs != nil {
			pv, err := misclass.PredictiveValues(t, st.Table, cls)
			if err != nil {
				return nil, err
			}
			pvs[st.Key] = pv
		}
	}
	if pvs == nil {
		return out, nil
	}

	imputed, err := impute.Records(records, pvs, e.ds.Observed, e.stratumKey, src)
	if err != nil {
		return nil, err
	}
	return table.FromRecords(imputed, e.cfg.Covariates, e.covIdx, trueOutcome), nil
}

// stratumKey returns the key of the stratum r falls into, or false when one of
// its covariates is missing.
func (e *Engine) stratumKey(r dataset.Record) (string, bool) {
	levels := make([]int8, len(e.covIdx))
	for i, xi := range e.covIdx {
		if r.X[xi] == dataset.Missing {
			return "", false
		}
		levels[i] = r.X[xi]
	}
	return table.Key(e.cfg.Covariates, levels), true
}

func trueOutcome(r dataset.Record) int8 { return r.Y }
