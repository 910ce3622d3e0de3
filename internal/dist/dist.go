// Package dist provides the distributions bias parameters are drawn from.
//
// A Distribution samples through the source passed to Draw and holds no
// random state of its own, so one value can be shared across concurrent trials
// each owning a private source.
package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"qba/internal/qbaerr"
)

// Distribution is a bias-parameter distribution.
type Distribution interface {
	// Draw returns one value sampled with src.
	Draw(src rand.Source) float64
	// Mean returns the distribution mean.
	Mean() float64
	// String describes the distribution, e.g. "triangular(0.4,0.5,0.6)".
	String() string
}

// Fixed is a point mass: the same value every draw.
type Fixed float64

func (f Fixed) Draw(rand.Source) float64 { return float64(f) }
func (f Fixed) Mean() float64            { return float64(f) }
func (f Fixed) String() string           { return fmt.Sprintf("%g", float64(f)) }

// IsFixed reports whether d never varies between draws.
func IsFixed(d Distribution) bool {
	_, ok := d.(Fixed)
	return ok
}

// Uniform is uniform on [Min, Max].
type Uniform struct{ Min, Max float64 }

// NewUniform validates min < max.
func NewUniform(min, max float64) (Distribution, error) {
	if err := finite("uniform", min, max); err != nil {
		return nil, err
	}
	if min == max {
		return Fixed(min), nil
	}
	if min > max {
		return nil, invalid("uniform: min %g > max %g", min, max)
	}
	return Uniform{Min: min, Max: max}, nil
}

func (u Uniform) Draw(src rand.Source) float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max, Src: src}.Rand()
}
func (u Uniform) Mean() float64  { return (u.Min + u.Max) / 2 }
func (u Uniform) String() string { return fmt.Sprintf("uniform(%g,%g)", u.Min, u.Max) }

// Triangular has support [Min, Max] and peak at Mode.
type Triangular struct{ Min, Mode, Max float64 }

// NewTriangular validates min <= mode <= max. A zero-width support collapses
// to Fixed.
func NewTriangular(min, mode, max float64) (Distribution, error) {
	if err := finite("triangular", min, mode, max); err != nil {
		return nil, err
	}
	if min == max {
		if mode != min {
			return nil, invalid("triangular: mode %g outside [%g,%g]", mode, min, max)
		}
		return Fixed(min), nil
	}
	if min > max || mode < min || mode > max {
		return nil, invalid("triangular: need min <= mode <= max, got (%g,%g,%g)", min, mode, max)
	}
	return Triangular{Min: min, Mode: mode, Max: max}, nil
}

func (t Triangular) Draw(src rand.Source) float64 {
	return distuv.NewTriangle(t.Min, t.Max, t.Mode, src).Rand()
}
func (t Triangular) Mean() float64 { return (t.Min + t.Mode + t.Max) / 3 }
func (t Triangular) String() string {
	return fmt.Sprintf("triangular(%g,%g,%g)", t.Min, t.Mode, t.Max)
}

// Trapezoidal is flat on [LowerMode, UpperMode] with linear tails to Min and
// Max.
type Trapezoidal struct{ Min, LowerMode, UpperMode, Max float64 }

// NewTrapezoidal validates min <= lowerMode <= upperMode <= max.
func NewTrapezoidal(min, lowerMode, upperMode, max float64) (Distribution, error) {
	if err := finite("trapezoidal", min, lowerMode, upperMode, max); err != nil {
		return nil, err
	}
	if !(min <= lowerMode && lowerMode <= upperMode && upperMode <= max) {
		return nil, invalid("trapezoidal: need min <= lower mode <= upper mode <= max, got (%g,%g,%g,%g)", min, lowerMode, upperMode, max)
	}
	if min == max {
		return Fixed(min), nil
	}
	return Trapezoidal{Min: min, LowerMode: lowerMode, UpperMode: upperMode, Max: max}, nil
}

// Draw inverts the trapezoid CDF.
func (t Trapezoidal) Draw(src rand.Source) float64 {
	u := rand.New(src).Float64()
	a, b, c, d := t.Min, t.LowerMode, t.UpperMode, t.Max
	h := 2 / (d + c - b - a)
	left := h * (b - a) / 2
	flat := h * (c - b)
	switch {
	case u < left:
		return a + math.Sqrt(u*(b-a)*2/h)
	case u <= left+flat:
		return b + (u-left)/h
	default:
		return d - math.Sqrt((1-u)*(d-c)*2/h)
	}
}

func (t Trapezoidal) Mean() float64 {
	a, b, c, d := t.Min, t.LowerMode, t.UpperMode, t.Max
	return ((d*d + c*d + c*c) - (a*a + a*b + b*b)) / (3 * (d + c - b - a))
}

func (t Trapezoidal) String() string {
	return fmt.Sprintf("trapezoidal(%g,%g,%g,%g)", t.Min, t.LowerMode, t.UpperMode, t.Max)
}

// Beta is the beta distribution, the usual choice for sensitivities
// and specificities estimated from validation studies.
type Beta struct{ Alpha, Beta float64 }

// NewBeta validates alpha, beta > 0.
func NewBeta(alpha, beta float64) (Distribution, error) {
	if err := finite("beta", alpha, beta); err != nil {
		return nil, err
	}
	if alpha <= 0 || beta <= 0 {
		return nil, invalid("beta: shape parameters must be > 0, got (%g,%g)", alpha, beta)
	}
	return Beta{Alpha: alpha, Beta: beta}, nil
}

func (b Beta) Draw(src rand.Source) float64 {
	return distuv.Beta{Alpha: b.Alpha, Beta: b.Beta, Src: src}.Rand()
}
func (b Beta) Mean() float64  { return b.Alpha / (b.Alpha + b.Beta) }
func (b Beta) String() string { return fmt.Sprintf("beta(%g,%g)", b.Alpha, b.Beta) }

// maxRejections bounds truncated-normal rejection sampling.
const maxRejections = 10000

// Normal is a normal distribution truncated to [Lo, Hi]. Infinite bounds
// disable truncation on that side.
type Normal struct{ Mu, Sigma, Lo, Hi float64 }

// NewNormal validates sigma >= 0 and that [lo, hi] has non-negligible mass.
func NewNormal(mu, sigma, lo, hi float64) (Distribution, error) {
	if err := finite("normal", mu, sigma); err != nil {
		return nil, err
	}
	if sigma < 0 || lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		return nil, invalid("normal: need sigma >= 0 and lo <= hi, got sigma=%g [%g,%g]", sigma, lo, hi)
	}
	if sigma == 0 {
		if mu < lo || mu > hi {
			return nil, invalid("normal: point mass %g outside [%g,%g]", mu, lo, hi)
		}
		return Fixed(mu), nil
	}
	n := distuv.Normal{Mu: mu, Sigma: sigma}
	if n.CDF(hi)-n.CDF(lo) < 1e-6 {
		return nil, invalid("normal: truncation [%g,%g] leaves no mass around mu=%g", lo, hi, mu)
	}
	return Normal{Mu: mu, Sigma: sigma, Lo: lo, Hi: hi}, nil
}

func (n Normal) Draw(src rand.Source) float64 {
	d := distuv.Normal{Mu: n.Mu, Sigma: n.Sigma, Src: src}
	for i := 0; i < maxRejections; i++ {
		if v := d.Rand(); v >= n.Lo && v <= n.Hi {
			return v
		}
	}
	// Unreachable for any truncation accepted by NewNormal in practice.
	return math.Max(n.Lo, math.Min(n.Hi, n.Mu))
}

// Mean returns the untruncated mean.
func (n Normal) Mean() float64 { return n.Mu }

func (n Normal) String() string {
	if math.IsInf(n.Lo, -1) && math.IsInf(n.Hi, 1) {
		return fmt.Sprintf("normal(%g,%g)", n.Mu, n.Sigma)
	}
	return fmt.Sprintf("normal(%g,%g,[%g,%g])", n.Mu, n.Sigma, n.Lo, n.Hi)
}

// LogNormal has log(X) ~ Normal(Mu, Sigma); a common prior for ratio
// parameters such as RR_UY.
type LogNormal struct{ Mu, Sigma float64 }

// NewLogNormal validates sigma >= 0.
func NewLogNormal(mu, sigma float64) (Distribution, error) {
	if err := finite("lognormal", mu, sigma); err != nil {
		return nil, err
	}
	if sigma < 0 {
		return nil, invalid("lognormal: sigma must be >= 0, got %g", sigma)
	}
	if sigma == 0 {
		return Fixed(math.Exp(mu)), nil
	}
	return LogNormal{Mu: mu, Sigma: sigma}, nil
}

func (l LogNormal) Draw(src rand.Source) float64 {
	return distuv.LogNormal{Mu: l.Mu, Sigma: l.Sigma, Src: src}.Rand()
}
func (l LogNormal) Mean() float64  { return math.Exp(l.Mu + l.Sigma*l.Sigma/2) }
func (l LogNormal) String() string { return fmt.Sprintf("lognormal(%g,%g)", l.Mu, l.Sigma) }

func finite(name string, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("%s: parameters must be finite, got %v", name, vals)
		}
	}
	return nil
}

func invalid(format string, a ...any) error {
	return qbaerr.Newf("dist.new", qbaerr.KindInvalidParameter, format, a...)
}
