package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"qba/internal/dist"
	"qba/internal/engine"
	"qba/internal/misclass"
	"qba/internal/params"
	"qba/internal/pba"
	"qba/internal/pool"
	"qba/internal/qbaerr"
	"qba/internal/sweep"
)

// MapAnalysis applies dto on top of base.
func MapAnalysis(path string, dto YAMLAnalysis, base Analysis) (Analysis, error) {
	a := base

	if ds := strings.TrimSpace(dto.Dataset); ds != "" {
		if !filepath.IsAbs(ds) {
			ds = filepath.Join(filepath.Dir(path), ds)
		}
		a.Dataset = ds
	}
	if dto.Covariates != nil {
		a.Covariates = append([]string{}, dto.Covariates...)
	}

	var err error
	if dto.Measure != "" {
		if a.PBA.Engine.Measure, err = pool.ParseMeasure(dto.Measure); err != nil {
			return Analysis{}, invalidField(path, "measure", err)
		}
	}
	if dto.Mode != "" {
		if a.PBA.Engine.Mode, err = engine.ParseMode(dto.Mode); err != nil {
			return Analysis{}, invalidField(path, "mode", err)
		}
	}
	if dto.Negative != "" {
		if a.PBA.Engine.Negative, err = misclass.ParseNegativePolicy(dto.Negative); err != nil {
			return Analysis{}, invalidField(path, "negative", err)
		}
	}
	if err := mapPBA(path, dto.PBA, &a.PBA); err != nil {
		return Analysis{}, err
	}

	if a.Params, err = mapParams(path, dto); err != nil {
		return Analysis{}, err
	}

	if len(dto.Sweep) > 0 {
		a.Sweep = sweep.Grid{Axes: make([]sweep.Axis, len(dto.Sweep))}
		for i, ax := range dto.Sweep {
			a.Sweep.Axes[i] = sweep.Axis{Name: strings.TrimSpace(ax.Name), Values: ax.Values}
		}
		if err := a.Sweep.Validate(); err != nil {
			return Analysis{}, invalidField(path, "sweep", err)
		}
	}
	return a, nil
}

func mapPBA(path string, y YAMLPBA, c *pba.Config) error {
	if y.Trials != nil {
		c.Trials = *y.Trials
	}
	if y.Seed != nil {
		c.Seed = *y.Seed
	}
	if y.Workers != nil {
		c.Workers = *y.Workers
	}
	if y.Level != nil {
		c.Level = *y.Level
	}
	if y.Bootstrap != nil {
		c.Bootstrap = *y.Bootstrap
	}
	if y.Policy != "" {
		p, err := pba.ParsePolicy(y.Policy)
		if err != nil {
			return invalidField(path, "pba.policy", err)
		}
		c.Policy = p
	}
	if err := c.Validate(); err != nil {
		return invalidField(path, "pba", err)
	}
	return nil
}

func mapParams(path string, dto YAMLAnalysis) (params.Parameters, error) {
	var p params.Parameters
	m := distMapper{path: path}

	if s := dto.Selection; s != nil {
		p.Selection = &params.Selection{
			S11: m.probability("selection.s11", s.S11),
			S01: m.probability("selection.s01", s.S01),
			S10: m.probability("selection.s10", s.S10),
			S00: m.probability("selection.s00", s.S00),
		}
	}
	if c := dto.Classification; c != nil {
		target, err := params.ParseTarget(c.Target)
		if err != nil {
			return params.Parameters{}, invalidField(path, "classification.target", err)
		}
		p.Classification = &params.Classification{
			Target:   target,
			Accuracy: m.accuracy("classification", c.YAMLAccuracy),
		}
		if len(c.Strata) > 0 {
			p.Classification.Strata = make(map[string]params.Accuracy, len(c.Strata))
			for k, acc := range c.Strata {
				p.Classification.Strata[k] = m.accuracy(fmt.Sprintf("classification.strata[%s]", k), acc)
			}
		}
	}
	if c := dto.Confounding; c != nil {
		p.Confounding = &params.Confounding{
			PU1:  m.probability("confounding.pu1", c.PU1),
			PU0:  m.probability("confounding.pu0", c.PU0),
			RRUY: m.dist("confounding.rr_uy", c.RRUY),
		}
	}
	if m.err != nil {
		return params.Parameters{}, m.err
	}
	return p, nil
}

// distMapper converts YAML distributions, keeping the first error so call
// sites can build whole sections before checking.
type distMapper struct {
	path string
	err  error
}

func (m *distMapper) accuracy(prefix string, y YAMLAccuracy) params.Accuracy {
	return params.Accuracy{
		Sens1: m.probability(prefix+".sens1", y.Sens1),
		Sens0: m.probability(prefix+".sens0", y.Sens0),
		Spec1: m.probability(prefix+".spec1", y.Spec1),
		Spec0: m.probability(prefix+".spec0", y.Spec0),
	}
}

// probability maps y and checks that its support lies within [0, 1].
func (m *distMapper) probability(field string, y *YAMLDist) dist.Distribution {
	d := m.dist(field, y)
	if d == nil || m.err != nil {
		return d
	}
	lo, hi := support(d)
	if lo < 0 || hi > 1 {
		m.fail(field, y, fmt.Errorf("%s can leave [0,1]; truncate it or choose a bounded form", d))
	}
	return d
}

func (m *distMapper) dist(field string, y *YAMLDist) dist.Distribution {
	if m.err != nil {
		return nil
	}
	if y == nil {
		m.fail(field, nil, fmt.Errorf("value is required"))
		return nil
	}
	d, err := build(y)
	if err != nil {
		m.fail(field, y, err)
		return nil
	}
	return d
}

func (m *distMapper) fail(field string, y *YAMLDist, err error) {
	if y != nil && y.Line > 0 {
		field = fmt.Sprintf("%s (line %d)", field, y.Line)
	}
	m.err = invalidField(m.path, field, err)
}

func build(y *YAMLDist) (dist.Distribution, error) {
	args := y.Args
	want := func(n ...int) error {
		for _, k := range n {
			if len(args) == k {
				return nil
			}
		}
		return fmt.Errorf("%s takes %v arguments, got %d", y.Form, n, len(args))
	}
	switch strings.ToLower(y.Form) {
	case "fixed":
		if err := want(1); err != nil {
			return nil, err
		}
		if math.IsNaN(args[0]) || math.IsInf(args[0], 0) {
			return nil, fmt.Errorf("fixed value must be finite, got %v", args[0])
		}
		return dist.Fixed(args[0]), nil
	case "uniform":
		if err := want(2); err != nil {
			return nil, err
		}
		return dist.NewUniform(args[0], args[1])
	case "triangular":
		if err := want(3); err != nil {
			return nil, err
		}
		return dist.NewTriangular(args[0], args[1], args[2])
	case "trapezoidal":
		if err := want(4); err != nil {
			return nil, err
		}
		return dist.NewTrapezoidal(args[0], args[1], args[2], args[3])
	case "beta":
		if err := want(2); err != nil {
			return nil, err
		}
		return dist.NewBeta(args[0], args[1])
	case "normal":
		if err := want(2, 4); err != nil {
			return nil, err
		}
		if len(args) == 2 {
			return dist.NewNormal(args[0], args[1], math.Inf(-1), math.Inf(1))
		}
		return dist.NewNormal(args[0], args[1], args[2], args[3])
	case "lognormal":
		if err := want(2); err != nil {
			return nil, err
		}
		return dist.NewLogNormal(args[0], args[1])
	default:
		return nil, fmt.Errorf("unknown distribution %q (want fixed|uniform|triangular|trapezoidal|beta|normal|lognormal)", y.Form)
	}
}

// support returns the bounds a distribution can draw from.
func support(d dist.Distribution) (lo, hi float64) {
	switch v := d.(type) {
	case dist.Fixed:
		return float64(v), float64(v)
	case dist.Uniform:
		return v.Min, v.Max
	case dist.Triangular:
		return v.Min, v.Max
	case dist.Trapezoidal:
		return v.Min, v.Max
	case dist.Beta:
		return 0, 1
	case dist.Normal:
		return v.Lo, v.Hi
	default:
		return 0, math.Inf(1)
	}
}

func invalidField(path, field string, err error) error {
	return &qbaerr.Error{
		Op:     "config.map",
		Kind:   qbaerr.KindInvalidParameter,
		Detail: fmt.Sprintf("%s: field %s", path, field),
		Err:    err,
	}
}
