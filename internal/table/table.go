// Package table holds 2×2 exposure × outcome tables, observed and
// bias-corrected, and builds them per stratum from records.
//
// Cell layout:
//
//	            exposed  unexposed
//	outcome        A         B
//	no outcome     C         D
package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"qba/internal/dataset"
	"qba/internal/qbaerr"
)

// Table is a 2×2 table. Observed tables hold non-negative integer counts;
// corrected tables may hold non-integer and, when the bias parameters do not
// fit the data, negative values.
type Table struct {
	A, B, C, D float64
}

// N returns the table total.
func (t Table) N() float64 { return t.A + t.B + t.C + t.D }

// Exposed returns the exposed column total A+C.
func (t Table) Exposed() float64 { return t.A + t.C }

// Unexposed returns the unexposed column total B+D.
func (t Table) Unexposed() float64 { return t.B + t.D }

// OddsRatio returns AD/BC. The result is Inf or NaN when BC is zero.
func (t Table) OddsRatio() float64 { return (t.A * t.D) / (t.B * t.C) }

// RiskRatio returns (A/(A+C)) / (B/(B+D)).
func (t Table) RiskRatio() float64 { return (t.A / t.Exposed()) / (t.B / t.Unexposed()) }

// HasNegative reports whether any cell is below zero.
func (t Table) HasNegative() bool { return t.A < 0 || t.B < 0 || t.C < 0 || t.D < 0 }

// Add returns the cell-wise sum of t and u.
func (t Table) Add(u Table) Table {
	return Table{A: t.A + u.A, B: t.B + u.B, C: t.C + u.C, D: t.D + u.D}
}

// Validate checks that t is a legal observed table.
func (t Table) Validate() error {
	for _, v := range [...]float64{t.A, t.B, t.C, t.D} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return qbaerr.Newf("table.validate", qbaerr.KindSchema, "invalid cell count %v in %s", v, t)
		}
	}
	return nil
}

func (t Table) String() string {
	return fmt.Sprintf("{a=%g b=%g c=%g d=%g}", t.A, t.B, t.C, t.D)
}

// Stratum is one covariate-level combination and its table.
type Stratum struct {
	Key    string
	Levels []int8
	Table  Table
}

// Strata is an ordered set of strata, sorted by Key.
type Strata []Stratum

// Tables returns the tables in stratum order.
func (s Strata) Tables() []Table {
	out := make([]Table, len(s))
	for i, st := range s {
		out[i] = st.Table
	}
	return out
}

// Collapse sums every stratum into one crude table.
func (s Strata) Collapse() Table {
	var t Table
	for _, st := range s {
		t = t.Add(st.Table)
	}
	return t
}

// Lookup returns the stratum with key, if any.
func (s Strata) Lookup(key string) (Stratum, bool) {
	for _, st := range s {
		if st.Key == key {
			return st, true
		}
	}
	return Stratum{}, false
}

// AllKey is the key of the single stratum built when no covariates are used.
const AllKey = "all"

// Key renders covariate levels as "x=1,z=0". No covariates yields AllKey.
func Key(covariates []string, levels []int8) string {
	if len(covariates) == 0 {
		return AllKey
	}
	var sb strings.Builder
	for i, c := range covariates {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(int(levels[i])))
	}
	return sb.String()
}

// ValidKey reports whether key is a stratum key Key can produce for
// covariates with binary levels.
func ValidKey(covariates []string, key string) bool {
	if len(covariates) == 0 {
		return key == AllKey
	}
	parts := strings.Split(key, ",")
	if len(parts) != len(covariates) {
		return false
	}
	for i, part := range parts {
		name, level, ok := strings.Cut(part, "=")
		if !ok || name != covariates[i] || (level != "0" && level != "1") {
			return false
		}
	}
	return true
}

// FromRecords builds one table per combination of the selected covariates,
// classifying the outcome with label. covIdx holds each covariate's position
// in Record.X and must be parallel to covariates. Records with a missing
// exposure or label are skipped.
func FromRecords(records []dataset.Record, covariates []string, covIdx []int, label func(dataset.Record) int8) Strata {
	// Only levels present in records become strata, so the hint is bounded by
	// the record count rather than the 2^k level space.
	byKey := make(map[string]*Stratum, min(len(records), 1<<min(len(covariates), 16)))
	levels := make([]int8, len(covariates))
	for _, r := range records {
		y := label(r)
		if r.A == dataset.Missing || y == dataset.Missing {
			continue
		}
		for i, xi := range covIdx {
			levels[i] = r.X[xi]
		}
		k := Key(covariates, levels)
		st, ok := byKey[k]
		if !ok {
			st = &Stratum{Key: k, Levels: append([]int8(nil), levels...)}
			byKey[k] = st
		}
		switch {
		case r.A == 1 && y == 1:
			st.Table.A++
		case r.A == 0 && y == 1:
			st.Table.B++
		case r.A == 1 && y == 0:
			st.Table.C++
		default:
			st.Table.D++
		}
	}

	out := make(Strata, 0, len(byKey))
	for _, st := range byKey {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
