// internal/output/text.go
package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"qba/pkg/api"
)

func writeHeader(bw *bufio.Writer, dataset, measure, mode string, covariates, params []string) {
	fmt.Fprintf(bw, "dataset:\t%s\n", dataset)
	fmt.Fprintf(bw, "measure:\t%s\n", measure)
	fmt.Fprintf(bw, "mode:\t%s\n", mode)
	if len(covariates) > 0 {
		fmt.Fprintf(bw, "strata:\t%s\n", strings.Join(covariates, ","))
	}
	for _, p := range params {
		fmt.Fprintf(bw, "param:\t%s\n", p)
	}
}

// WriteAdjustText prints an adjustment as tab-separated key/value lines
// followed by one line per stratum.
func WriteAdjustText(w io.Writer, v api.AdjustV1) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, v.Dataset, v.Measure, v.Mode, v.Covariates, v.Params)
	fmt.Fprintf(bw, "observed:\t%s\n", formatPtr(v.Observed))
	fmt.Fprintf(bw, "estimate:\t%s\n", formatPtr(v.Estimate))
	if len(v.Strata) > 1 {
		for _, s := range v.Strata {
			fmt.Fprintf(bw, "stratum:\t%s\t%s\n", s.Key, tableText(s.Observed))
		}
	}
	if v.RunID != "" {
		fmt.Fprintf(bw, "run_id:\t%s\n", v.RunID)
	}
	return bw.Flush()
}

// WriteResultText prints a PBA summary.
func WriteResultText(w io.Writer, v api.ResultV1) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, v.Dataset, v.Measure, v.Mode, v.Covariates, v.Params)
	fmt.Fprintf(bw, "seed:\t%d\n", v.Seed)
	fmt.Fprintf(bw, "observed:\t%s\n", formatPtr(v.Observed))
	fmt.Fprintf(bw, "point_estimate:\t%s\n", formatFloat(v.PointEstimate))
	fmt.Fprintf(bw, "interval:\t%s\t%s\t(%s%%)\n", formatFloat(v.CILow), formatFloat(v.CIHigh), formatFloat(v.Level*100))
	fmt.Fprintf(bw, "trials:\t%d used\t%d excluded\n", v.TrialsUsed, v.TrialsExcluded)
	for _, k := range sortedKeys(v.Exclusions) {
		fmt.Fprintf(bw, "excluded:\t%s\t%d\n", k, v.Exclusions[k])
	}
	if v.RunID != "" {
		fmt.Fprintf(bw, "run_id:\t%s\n", v.RunID)
	}
	return bw.Flush()
}

// WriteSweepText prints one TSV row per cell, with an optional header.
func WriteSweepText(w io.Writer, v api.SweepV1, header bool) error {
	bw := bufio.NewWriter(w)
	if header {
		cols := append([]string{SweepTSVPrefix}, v.Axes...)
		fmt.Fprintf(bw, "%s\t%s\n", strings.Join(cols, "\t"), SweepTSVSuffix)
	}
	for _, c := range v.Cells {
		fmt.Fprintf(bw, "%d", c.Index)
		for _, a := range v.Axes {
			fmt.Fprintf(bw, "\t%s", formatFloat(c.Values[a]))
		}
		kind := c.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(bw, "\t%s\t%s\n", formatPtr(c.Estimate), kind)
	}
	return bw.Flush()
}

func tableText(t api.TableV1) string {
	return fmt.Sprintf("a=%s b=%s c=%s d=%s", formatFloat(t.A), formatFloat(t.B), formatFloat(t.C), formatFloat(t.D))
}
