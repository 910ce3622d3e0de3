// Package config turns an analysis file and environment defaults into the
// typed settings of a run.
package config

import (
	"qba/internal/engine"
	"qba/internal/misclass"
	"qba/internal/params"
	"qba/internal/pba"
	"qba/internal/pool"
	"qba/internal/sweep"
)

// Analysis is a fully resolved analysis description.
type Analysis struct {
	// Dataset is the CSV path, resolved against the analysis file directory.
	Dataset string
	// Covariates selects the stratification columns; nil means every
	// non-reserved column of the dataset.
	Covariates []string

	PBA    pba.Config
	Params params.Parameters
	Sweep  sweep.Grid

	LogLevel  string
	LogFormat string
	DB        string
}

// Defaults returns the analysis used when neither a file nor flags say
// otherwise, seeded from e.
func Defaults(e Env) Analysis {
	cfg := pba.DefaultConfig()
	cfg.Trials = e.Trials
	cfg.Workers = e.Workers
	cfg.Seed = e.Seed
	cfg.Engine = engine.Config{Measure: pool.OddsRatio, Mode: engine.ModeTable, Negative: misclass.Propagate}
	return Analysis{
		PBA:       cfg,
		LogLevel:  e.LogLevel,
		LogFormat: e.LogFormat,
		DB:        e.DB,
	}
}
