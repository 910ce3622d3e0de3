package output

import (
	"math"
	"sort"
	"strconv"
)

// NA is printed in text output for an undefined value.
const NA = "NA"

// SweepTSVPrefix and SweepTSVSuffix frame the axis columns of the sweep TSV
// header: index, one column per axis, estimate, kind.
const (
	SweepTSVPrefix = "index"
	SweepTSVSuffix = "estimate\tkind"
)

// Finite returns &v, or nil when v is NaN or infinite.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatPtr(v *float64) string {
	if v == nil {
		return NA
	}
	return formatFloat(*v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
