// Package dataset holds the record-level input of a bias analysis: binary
// exposure, true and/or misclassified outcome, selection indicator and
// stratification covariates.
package dataset

import "math/rand/v2"

// Missing marks a field that is unknown by design (true outcome when only the
// misclassified outcome was observed) or absent from the input.
const Missing int8 = -1

// Record is a single subject. A, Y, MY and S are 0, 1 or Missing; X holds one
// 0/1 value per covariate of the owning Dataset.
type Record struct {
	A  int8
	Y  int8
	MY int8
	S  int8
	X  []int8
}

// Columns records which optional columns were present in the input.
type Columns struct {
	Y  bool
	MY bool
	S  bool
}

// Dataset is an ordered collection of records.
type Dataset struct {
	Columns    Columns
	Covariates []string
	Records    []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Observed returns the outcome label the analysis treats as observed: the
// misclassified outcome when it was recorded, the true outcome otherwise.
func (d *Dataset) Observed(r Record) int8 {
	if d.Columns.MY {
		return r.MY
	}
	return r.Y
}

// ObservedLabel is Observed as a free function for table builders.
func (d *Dataset) ObservedLabel() func(Record) int8 {
	return d.Observed
}

// CovariateIndex returns the position of name in Covariates, or -1.
func (d *Dataset) CovariateIndex(name string) int {
	for i, c := range d.Covariates {
		if c == name {
			return i
		}
	}
	return -1
}

// Selected returns the records that made it into the study sample. Without an
// s column every record is considered selected.
func (d *Dataset) Selected() []Record {
	if !d.Columns.S {
		return d.Records
	}
	out := make([]Record, 0, len(d.Records))
	for _, r := range d.Records {
		if r.S == 1 {
			out = append(out, r)
		}
	}
	return out
}

// WithRecords returns a shallow copy of d holding records instead.
func (d *Dataset) WithRecords(records []Record) *Dataset {
	return &Dataset{Columns: d.Columns, Covariates: d.Covariates, Records: records}
}

// Resample draws a bootstrap sample of records: same size, with replacement.
// The draw depends only on src, so equal sources give equal samples.
func Resample(records []Record, src *rand.Rand) []Record {
	n := len(records)
	out := make([]Record, n)
	for i := range out {
		out[i] = records[src.IntN(n)]
	}
	return out
}
