package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"qba/internal/config"
	"qba/internal/dataset"
	"qba/internal/engine"
	"qba/internal/logging"
	"qba/internal/misclass"
	"qba/internal/output"
	"qba/internal/pool"
	"qba/internal/storage"
	"qba/internal/storage/sqlite"
	"qba/internal/writers"
)

// commonFlags are shared by adjust, pba and sweep.
type commonFlags struct {
	configPath string
	dataset    string
	covariates []string
	measure    string
	mode       string
	negative   string
	sets       []string
	format     string
	header     bool
	db         string
	logLevel   string
	logFormat  string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML analysis file")
	fs.StringVarP(&f.dataset, "dataset", "d", "", "CSV dataset (overrides the analysis file)")
	fs.StringSliceVar(&f.covariates, "strata", nil, "stratification covariates (default: every non-reserved column)")
	fs.StringVar(&f.measure, "measure", "", "effect measure: or|rr")
	fs.StringVar(&f.mode, "mode", "", "misclassification correction: table|record")
	fs.StringVar(&f.negative, "negative", "", "negative corrected cells: propagate|reject")
	fs.StringArrayVar(&f.sets, "set", nil, "fix a bias parameter, name=value (repeatable)")
	fs.StringVarP(&f.format, "format", "o", "text", "output format: "+strings.Join(writers.Formats(), "|"))
	fs.BoolVar(&f.header, "header", true, "print a header row in TSV output")
	fs.StringVar(&f.db, "db", "", "SQLite file to record the run in (env QBA_DB)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error (env QBA_LOG_LEVEL)")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text|json (env QBA_LOG_FORMAT)")
}

// session is everything a command needs once flags, the analysis file and
// the environment have been merged.
type session struct {
	analysis config.Analysis
	data     *dataset.Dataset
	logger   *slog.Logger
	format   string
	header   bool
}

// resolve merges defaults < environment < analysis file < flags, then loads
// the dataset. extra applies command-specific flags on top.
func (f *commonFlags) resolve(st *state, fs *pflag.FlagSet, extra func(*config.Analysis) error) (*session, error) {
	if _, ok := writers.ReportWriters[f.format]; !ok {
		return nil, usagef("unknown --format %q (want %s)", f.format, strings.Join(writers.Formats(), "|"))
	}
	env, err := config.LoadEnv()
	if err != nil {
		return nil, usageError{err: err}
	}
	a := config.Defaults(env)
	if f.configPath != "" {
		if a, err = config.Load(f.configPath, a); err != nil {
			return nil, err
		}
	}
	if err := f.apply(fs, &a); err != nil {
		return nil, err
	}
	if extra != nil {
		if err := extra(&a); err != nil {
			return nil, err
		}
	}
	if a.Dataset == "" {
		return nil, usagef("no dataset: pass --dataset or set dataset in --config")
	}

	logger, err := logging.New(st.stderr, a.LogLevel, a.LogFormat)
	if err != nil {
		return nil, usageError{err: err}
	}

	ds, err := dataset.LoadCSV(a.Dataset, dataset.LoadOptions{Covariates: a.Covariates})
	if err != nil {
		return nil, err
	}
	a.PBA.Engine.Covariates = ds.Covariates
	logger.Debug("dataset_loaded",
		slog.String("path", a.Dataset),
		slog.Int("records", ds.Len()),
		slog.Any("covariates", ds.Covariates),
	)
	return &session{analysis: a, data: ds, logger: logger, format: f.format, header: f.header}, nil
}

func (f *commonFlags) apply(fs *pflag.FlagSet, a *config.Analysis) error {
	var err error
	if changed(fs, "dataset") {
		a.Dataset = f.dataset
	}
	if changed(fs, "strata") {
		a.Covariates = append([]string{}, f.covariates...)
	}
	if changed(fs, "measure") {
		if a.PBA.Engine.Measure, err = pool.ParseMeasure(f.measure); err != nil {
			return usageError{err: err}
		}
	}
	if changed(fs, "mode") {
		if a.PBA.Engine.Mode, err = engine.ParseMode(f.mode); err != nil {
			return usageError{err: err}
		}
	}
	if changed(fs, "negative") {
		if a.PBA.Engine.Negative, err = misclass.ParseNegativePolicy(f.negative); err != nil {
			return usageError{err: err}
		}
	}
	if changed(fs, "db") {
		a.DB = f.db
	}
	if changed(fs, "log-level") {
		a.LogLevel = f.logLevel
	}
	if changed(fs, "log-format") {
		a.LogFormat = f.logFormat
	}
	for _, kv := range f.sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return usagef("--set %q: want name=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return usagef("--set %q: %v", kv, err)
		}
		if err := a.Params.Fix(strings.TrimSpace(name), v); err != nil {
			return usageError{err: err}
		}
	}
	return nil
}

// meta is the report header of s.
func (s *session) meta() output.Meta {
	c := s.analysis.PBA.Engine
	return output.Meta{
		Dataset:    s.analysis.Dataset,
		Measure:    c.Measure.String(),
		Mode:       c.Mode.String(),
		Covariates: c.Covariates,
		Params:     s.analysis.Params.Describe(),
	}
}

// save records run in the configured database and returns its ID; it is a
// no-op without a database.
func (s *session) save(ctx context.Context, run storage.Run, trials []storage.Trial) (string, error) {
	if s.analysis.DB == "" {
		return "", nil
	}
	store, err := sqlite.Open(ctx, s.analysis.DB)
	if err != nil {
		return "", err
	}
	defer store.Close()

	m := s.meta()
	run.Dataset = m.Dataset
	run.Measure = m.Measure
	run.Params = m.Params
	id, err := store.SaveRun(ctx, run, trials)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	s.logger.Info("run_saved", slog.String("id", id), slog.String("db", s.analysis.DB))
	return id, nil
}

func (s *session) write(w io.Writer, report any) error {
	return writers.WriteReport(s.format, w, report, writers.Options{Header: s.header})
}
