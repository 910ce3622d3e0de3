// Package params holds the bias parameters of an analysis as distributions
// and resolves them into the per-trial scalar values the engine consumes.
//
// Parameters are plain values passed explicitly to every run; nothing here is
// process-global, so concurrent analyses with different parameters are safe.
package params

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"qba/internal/bias"
	"qba/internal/dist"
	"qba/internal/misclass"
	"qba/internal/qbaerr"
)

// Target is the variable subject to misclassification.
type Target int

const (
	Outcome Target = iota
	Exposure
)

func (t Target) String() string {
	if t == Exposure {
		return "exposure"
	}
	return "outcome"
}

// ParseTarget maps "outcome" / "exposure" to a Target. Empty means Outcome.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "", "outcome":
		return Outcome, nil
	case "exposure":
		return Exposure, nil
	default:
		return 0, qbaerr.Newf("params.parse_target", qbaerr.KindInvalidParameter, "unknown misclassification target %q (want outcome|exposure)", s)
	}
}

// Selection holds the distributions of P(selected | exposure, outcome).
type Selection struct {
	S11, S01, S10, S00 dist.Distribution
}

// Accuracy holds sensitivity and specificity distributions per group. The
// group index follows misclass.Classification.
type Accuracy struct {
	Sens1, Sens0, Spec1, Spec0 dist.Distribution
}

// Classification configures misclassification correction. Strata overrides
// replace the common Accuracy for the stratum with that key.
type Classification struct {
	Target Target
	Accuracy
	Strata map[string]Accuracy
}

// Confounding holds the distributions describing an unmeasured confounder.
type Confounding struct {
	PU1, PU0, RRUY dist.Distribution
}

// Parameters is the full set of bias parameters for one analysis. A nil
// section means that mechanism is not corrected for.
type Parameters struct {
	Selection      *Selection
	Classification *Classification
	Confounding    *Confounding
}

// Empty reports whether no bias mechanism is configured.
func (p Parameters) Empty() bool {
	return p.Selection == nil && p.Classification == nil && p.Confounding == nil
}

// Fixed reports whether every configured distribution is a point mass, in
// which case every Draw returns the same Scalars.
func (p Parameters) Fixed() bool {
	for _, d := range p.distributions() {
		if !dist.IsFixed(d) {
			return false
		}
	}
	return true
}

// Validate checks that every configured distribution is set.
func (p Parameters) Validate() error {
	for _, n := range p.named() {
		if n.d == nil {
			return qbaerr.Newf("params.validate", qbaerr.KindInvalidParameter, "%s has no distribution", n.name)
		}
	}
	return nil
}

// ClassificationValues is one resolved draw of Classification.
type ClassificationValues struct {
	Target Target
	misclass.Classification
	Strata map[string]misclass.Classification
}

// For returns the classification for stratum key.
func (c *ClassificationValues) For(key string) misclass.Classification {
	if s, ok := c.Strata[key]; ok {
		return s
	}
	return c.Classification
}

// Scalars is one fully resolved set of bias parameters.
type Scalars struct {
	Selection      *bias.Selection
	Classification *ClassificationValues
	Confounding    *bias.Confounding
}

// Draw samples every distribution of p once, in a fixed order, using src.
// Point masses are returned unchanged and consume no randomness.
func (p Parameters) Draw(src rand.Source) Scalars {
	var s Scalars
	if sel := p.Selection; sel != nil {
		s.Selection = &bias.Selection{
			S11: sel.S11.Draw(src),
			S01: sel.S01.Draw(src),
			S10: sel.S10.Draw(src),
			S00: sel.S00.Draw(src),
		}
	}
	if c := p.Classification; c != nil {
		cv := &ClassificationValues{Target: c.Target, Classification: c.Accuracy.draw(src)}
		if len(c.Strata) > 0 {
			cv.Strata = make(map[string]misclass.Classification, len(c.Strata))
			for _, k := range sortedKeys(c.Strata) {
				cv.Strata[k] = c.Strata[k].draw(src)
			}
		}
		s.Classification = cv
	}
	if c := p.Confounding; c != nil {
		s.Confounding = &bias.Confounding{
			PU1:  c.PU1.Draw(src),
			PU0:  c.PU0.Draw(src),
			RRUY: c.RRUY.Draw(src),
		}
	}
	return s
}

func (a Accuracy) draw(src rand.Source) misclass.Classification {
	return misclass.Classification{
		Sens1: a.Sens1.Draw(src),
		Sens0: a.Sens0.Draw(src),
		Spec1: a.Spec1.Draw(src),
		Spec0: a.Spec0.Draw(src),
	}
}

// Clone returns a deep copy of s.
func (s Scalars) Clone() Scalars {
	var out Scalars
	if s.Selection != nil {
		v := *s.Selection
		out.Selection = &v
	}
	if s.Classification != nil {
		v := *s.Classification
		if s.Classification.Strata != nil {
			v.Strata = make(map[string]misclass.Classification, len(s.Classification.Strata))
			for k, c := range s.Classification.Strata {
				v.Strata[k] = c
			}
		}
		out.Classification = &v
	}
	if s.Confounding != nil {
		v := *s.Confounding
		out.Confounding = &v
	}
	return out
}

// Names lists every dotted parameter name Get and Set accept.
func Names() []string {
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get returns the value of the named parameter.
func (s Scalars) Get(name string) (float64, error) {
	f, ok := fields[name]
	if !ok {
		return 0, unknown("params.get", name)
	}
	p := f(&s, false)
	if p == nil {
		return 0, qbaerr.Newf("params.get", qbaerr.KindInvalidParameter, "%s: section not configured", name)
	}
	return *p, nil
}

// Set assigns the named parameter, creating its section when absent. A newly
// created classification section starts out perfect, a selection section
// with every probability 1, so only the assigned value introduces bias.
func (s *Scalars) Set(name string, v float64) error {
	f, ok := fields[name]
	if !ok {
		return unknown("params.set", name)
	}
	if c := s.Classification; c != nil {
		if err := commonOnly("params.set", name, len(c.Strata)); err != nil {
			return err
		}
	}
	*f(s, true) = v
	return nil
}

// commonOnly rejects setting a classification.* name while stratum overrides
// exist: the name addresses the common accuracy, which the overridden strata
// never read.
func commonOnly(op, name string, overrides int) error {
	if overrides == 0 || !strings.HasPrefix(name, "classification.") {
		return nil
	}
	return qbaerr.Newf(op, qbaerr.KindInvalidParameter,
		"%s sets the common accuracy only, but %d stratum override(s) would ignore it; remove classification.strata or vary the overrides in the file", name, overrides)
}

// Known reports whether name is a valid parameter name.
func Known(name string) bool {
	_, ok := fields[name]
	return ok
}

// field returns a pointer to one parameter inside s. With create set, a
// missing section is allocated; otherwise nil is returned for it.
type field func(s *Scalars, create bool) *float64

var fields = map[string]field{
	"selection.s11":        selection(func(x *bias.Selection) *float64 { return &x.S11 }),
	"selection.s01":        selection(func(x *bias.Selection) *float64 { return &x.S01 }),
	"selection.s10":        selection(func(x *bias.Selection) *float64 { return &x.S10 }),
	"selection.s00":        selection(func(x *bias.Selection) *float64 { return &x.S00 }),
	"classification.sens1": classification(func(x *misclass.Classification) *float64 { return &x.Sens1 }),
	"classification.sens0": classification(func(x *misclass.Classification) *float64 { return &x.Sens0 }),
	"classification.spec1": classification(func(x *misclass.Classification) *float64 { return &x.Spec1 }),
	"classification.spec0": classification(func(x *misclass.Classification) *float64 { return &x.Spec0 }),
	"confounding.pu1":      confounding(func(x *bias.Confounding) *float64 { return &x.PU1 }),
	"confounding.pu0":      confounding(func(x *bias.Confounding) *float64 { return &x.PU0 }),
	"confounding.rr_uy":    confounding(func(x *bias.Confounding) *float64 { return &x.RRUY }),
}

func selection(at func(*bias.Selection) *float64) field {
	return func(s *Scalars, create bool) *float64 {
		if s.Selection == nil {
			if !create {
				return nil
			}
			s.Selection = &bias.Selection{S11: 1, S01: 1, S10: 1, S00: 1}
		}
		return at(s.Selection)
	}
}

func classification(at func(*misclass.Classification) *float64) field {
	return func(s *Scalars, create bool) *float64 {
		if s.Classification == nil {
			if !create {
				return nil
			}
			s.Classification = &ClassificationValues{Classification: misclass.Perfect}
		}
		return at(&s.Classification.Classification)
	}
}

func confounding(at func(*bias.Confounding) *float64) field {
	return func(s *Scalars, create bool) *float64 {
		if s.Confounding == nil {
			if !create {
				return nil
			}
			s.Confounding = &bias.Confounding{RRUY: 1}
		}
		return at(s.Confounding)
	}
}

func unknown(op, name string) error {
	return qbaerr.Newf(op, qbaerr.KindInvalidParameter, "unknown parameter %q", name)
}

type namedDist struct {
	name string
	d    dist.Distribution
}

func (p Parameters) named() []namedDist {
	var out []namedDist
	if s := p.Selection; s != nil {
		out = append(out,
			namedDist{"selection.s11", s.S11}, namedDist{"selection.s01", s.S01},
			namedDist{"selection.s10", s.S10}, namedDist{"selection.s00", s.S00})
	}
	if c := p.Classification; c != nil {
		out = append(out, c.Accuracy.named("classification")...)
		for _, k := range sortedKeys(c.Strata) {
			out = append(out, c.Strata[k].named(fmt.Sprintf("classification.strata[%s]", k))...)
		}
	}
	if c := p.Confounding; c != nil {
		out = append(out,
			namedDist{"confounding.pu1", c.PU1}, namedDist{"confounding.pu0", c.PU0},
			namedDist{"confounding.rr_uy", c.RRUY})
	}
	return out
}

func (a Accuracy) named(prefix string) []namedDist {
	return []namedDist{
		{prefix + ".sens1", a.Sens1}, {prefix + ".sens0", a.Sens0},
		{prefix + ".spec1", a.Spec1}, {prefix + ".spec0", a.Spec0},
	}
}

func (p Parameters) distributions() []dist.Distribution {
	n := p.named()
	out := make([]dist.Distribution, len(n))
	for i, nd := range n {
		out[i] = nd.d
	}
	return out
}

// Describe returns "name=distribution" for every configured parameter, in
// draw order.
func (p Parameters) Describe() []string {
	n := p.named()
	out := make([]string, len(n))
	for i, nd := range n {
		d := "<nil>"
		if nd.d != nil {
			d = nd.d.String()
		}
		out[i] = nd.name + "=" + d
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns every configured scalar keyed by its dotted name.
// Per-stratum classification overrides are not included.
func (s Scalars) Values() map[string]float64 {
	out := make(map[string]float64)
	for _, name := range Names() {
		if v, err := s.Get(name); err == nil {
			out[name] = v
		}
	}
	return out
}

// Fix replaces the named distribution with a point mass at v, creating its
// section with neutral point masses when absent.
func (p *Parameters) Fix(name string, v float64) error {
	at, ok := distFields[name]
	if !ok {
		return unknown("params.fix", name)
	}
	if c := p.Classification; c != nil {
		if err := commonOnly("params.fix", name, len(c.Strata)); err != nil {
			return err
		}
	}
	*at(p) = dist.Fixed(v)
	return nil
}

var distFields = map[string]func(p *Parameters) *dist.Distribution{
	"selection.s11":        func(p *Parameters) *dist.Distribution { return &p.selection().S11 },
	"selection.s01":        func(p *Parameters) *dist.Distribution { return &p.selection().S01 },
	"selection.s10":        func(p *Parameters) *dist.Distribution { return &p.selection().S10 },
	"selection.s00":        func(p *Parameters) *dist.Distribution { return &p.selection().S00 },
	"classification.sens1": func(p *Parameters) *dist.Distribution { return &p.classification().Sens1 },
	"classification.sens0": func(p *Parameters) *dist.Distribution { return &p.classification().Sens0 },
	"classification.spec1": func(p *Parameters) *dist.Distribution { return &p.classification().Spec1 },
	"classification.spec0": func(p *Parameters) *dist.Distribution { return &p.classification().Spec0 },
	"confounding.pu1":      func(p *Parameters) *dist.Distribution { return &p.confounding().PU1 },
	"confounding.pu0":      func(p *Parameters) *dist.Distribution { return &p.confounding().PU0 },
	"confounding.rr_uy":    func(p *Parameters) *dist.Distribution { return &p.confounding().RRUY },
}

func (p *Parameters) selection() *Selection {
	if p.Selection == nil {
		p.Selection = &Selection{S11: dist.Fixed(1), S01: dist.Fixed(1), S10: dist.Fixed(1), S00: dist.Fixed(1)}
	}
	return p.Selection
}

func (p *Parameters) classification() *Classification {
	if p.Classification == nil {
		p.Classification = &Classification{Accuracy: Accuracy{
			Sens1: dist.Fixed(1), Sens0: dist.Fixed(1), Spec1: dist.Fixed(1), Spec0: dist.Fixed(1),
		}}
	}
	return p.Classification
}

func (p *Parameters) confounding() *Confounding {
	if p.Confounding == nil {
		p.Confounding = &Confounding{PU1: dist.Fixed(0), PU0: dist.Fixed(0), RRUY: dist.Fixed(1)}
	}
	return p.Confounding
}
