// Package sweep evaluates an estimate over the Cartesian product of fixed
// bias-parameter values.
package sweep

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"qba/internal/params"
	"qba/internal/qbaerr"
)

// Axis is one swept parameter and the values it takes.
type Axis struct {
	Name   string
	Values []float64
}

// Grid is the Cartesian product of its axes, indexed row-major: the last axis
// varies fastest.
type Grid struct {
	Axes []Axis
}

// Validate checks that every axis names a known parameter once and has values.
func (g Grid) Validate() error {
	const op = "sweep.grid"
	if len(g.Axes) == 0 {
		return qbaerr.New(op, qbaerr.KindInvalidParameter, "no axes")
	}
	seen := make(map[string]bool, len(g.Axes))
	for _, a := range g.Axes {
		if !params.Known(a.Name) {
			return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "unknown parameter %q", a.Name)
		}
		if seen[a.Name] {
			return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "parameter %q swept twice", a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "axis %q has no values", a.Name)
		}
	}
	return nil
}

// Size returns the number of grid points.
func (g Grid) Size() int {
	if len(g.Axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range g.Axes {
		n *= len(a.Values)
	}
	return n
}

// Point returns the axis values at row-major index i.
func (g Grid) Point(i int) []float64 {
	out := make([]float64, len(g.Axes))
	for k := len(g.Axes) - 1; k >= 0; k-- {
		n := len(g.Axes[k].Values)
		out[k] = g.Axes[k].Values[i%n]
		i /= n
	}
	return out
}

// Cell is one evaluated grid point. Err holds the reason the estimate is
// undefined at this point; other cells are unaffected.
type Cell struct {
	Index    int
	Values   []float64
	Estimate float64
	Err      error
}

// Func computes an estimate from a resolved parameter set.
type Func func(params.Scalars) (float64, error)

// Run evaluates fn at every grid point, with the swept values overriding
// base, using up to workers goroutines (0 means GOMAXPROCS). Cells are
// returned in index order.
//
// Errors of a trial-level kind are kept on their cell. Any other error, or
// cancellation of ctx, aborts the sweep.
func Run(ctx context.Context, g Grid, base params.Scalars, workers int, fn Func) ([]Cell, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	// An axis base cannot take is a grid error, not a per-cell one.
	check := base.Clone()
	for _, a := range g.Axes {
		if err := check.Set(a.Name, a.Values[0]); err != nil {
			return nil, err
		}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cells := make([]Cell, g.Size())

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range cells {
		if ectx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			vals := g.Point(i)
			s := base.Clone()
			for k, a := range g.Axes {
				if err := s.Set(a.Name, vals[k]); err != nil {
					return err
				}
			}
			est, err := fn(s)
			if err != nil && !qbaerr.IsTrialLevel(qbaerr.KindOf(err)) {
				return fmt.Errorf("sweep cell %d: %w", i, err)
			}
			cells[i] = Cell{Index: i, Values: vals, Estimate: est, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cells, nil
}
