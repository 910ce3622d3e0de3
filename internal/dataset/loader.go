package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"qba/internal/qbaerr"
)

// Reserved column names. Every other column is a candidate covariate.
const (
	ColExposure   = "a"
	ColOutcome    = "y"
	ColMisOutcome = "m_y"
	ColSelection  = "s"
)

// LoadOptions controls which columns become stratification covariates.
type LoadOptions struct {
	// Covariates lists the covariate columns to keep, in order. Nil keeps
	// every non-reserved column; an empty non-nil slice keeps none.
	Covariates []string
}

// LoadCSV reads a comma-separated dataset with a header row.
func LoadCSV(path string, opts LoadOptions) (*Dataset, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	ds, err := ReadCSV(fh, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses a dataset from r. The header must contain a and at least one
// of y / m_y; every value must be 0 or 1. The y cell may be empty when m_y is
// present. Violations are reported as schema errors with their line number.
func ReadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	const op = "dataset.read_csv"

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, qbaerr.New(op, qbaerr.KindSchema, "empty input: header row required")
	}
	if err != nil {
		return nil, qbaerr.Wrap(op, qbaerr.KindSchema, err)
	}

	idx := make(map[string]int, len(header))
	var others []string
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			return nil, qbaerr.Newf(op, qbaerr.KindSchema, "column %d has an empty name", i+1)
		}
		if _, dup := idx[name]; dup {
			return nil, qbaerr.Newf(op, qbaerr.KindSchema, "duplicate column %q", name)
		}
		idx[name] = i
		switch name {
		case ColExposure, ColOutcome, ColMisOutcome, ColSelection:
		default:
			others = append(others, name)
		}
	}

	if _, ok := idx[ColExposure]; !ok {
		return nil, qbaerr.Newf(op, qbaerr.KindSchema, "missing required column %q", ColExposure)
	}
	_, hasY := idx[ColOutcome]
	_, hasMY := idx[ColMisOutcome]
	_, hasS := idx[ColSelection]
	if !hasY && !hasMY {
		return nil, qbaerr.Newf(op, qbaerr.KindSchema, "missing outcome column: need %q or %q", ColOutcome, ColMisOutcome)
	}

	covs := others
	if opts.Covariates != nil {
		covs = make([]string, 0, len(opts.Covariates))
		for _, c := range opts.Covariates {
			c = strings.ToLower(strings.TrimSpace(c))
			if _, ok := idx[c]; !ok {
				return nil, qbaerr.Newf(op, qbaerr.KindSchema, "covariate column %q not found", c)
			}
			covs = append(covs, c)
		}
	}

	ds := &Dataset{
		Columns:    Columns{Y: hasY, MY: hasMY, S: hasS},
		Covariates: covs,
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, qbaerr.Wrap(op, qbaerr.KindSchema, err)
		}
		if isEmptyRow(row) {
			continue
		}

		rec := Record{A: Missing, Y: Missing, MY: Missing, S: Missing}
		cell := func(col string, allowEmpty bool) (int8, error) {
			v, err := parseBinary(row[idx[col]], allowEmpty)
			if err != nil {
				return 0, qbaerr.Newf(op, qbaerr.KindSchema, "line %d column %q: %v", line, col, err)
			}
			return v, nil
		}

		if rec.A, err = cell(ColExposure, false); err != nil {
			return nil, err
		}
		if hasMY {
			if rec.MY, err = cell(ColMisOutcome, false); err != nil {
				return nil, err
			}
		}
		if hasY {
			if rec.Y, err = cell(ColOutcome, hasMY); err != nil {
				return nil, err
			}
		}
		if hasS {
			if rec.S, err = cell(ColSelection, false); err != nil {
				return nil, err
			}
		}
		if len(covs) > 0 {
			rec.X = make([]int8, len(covs))
			for i, c := range covs {
				if rec.X[i], err = cell(c, false); err != nil {
					return nil, err
				}
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func parseBinary(s string, allowEmpty bool) (int8, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	case "", "NA":
		if allowEmpty {
			return Missing, nil
		}
		return 0, errors.New("value required")
	default:
		return 0, fmt.Errorf("value %q is not 0 or 1", s)
	}
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
