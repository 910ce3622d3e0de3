// pkg/api/results_v1.go
package api

// Version is the wire schema version carried by every top-level report.
const Version = "v1"

// Undefined values (NaN estimates) are encoded as JSON null, hence the
// pointer fields. Keep fields, names, and types stable. Add new fields only
// with ",omitempty".

// TableV1 is one 2x2 table: a exposed cases, b unexposed cases, c exposed
// non-cases, d unexposed non-cases.
type TableV1 struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// StratumV1 is one covariate stratum before and after correction.
type StratumV1 struct {
	Key       string   `json:"key"`
	Observed  TableV1  `json:"observed"`
	Corrected *TableV1 `json:"corrected,omitempty"`
}

// AdjustV1 is the report of a single fixed-parameter adjustment.
type AdjustV1 struct {
	Schema     string      `json:"schema"`
	RunID      string      `json:"run_id,omitempty"`
	Dataset    string      `json:"dataset"`
	Measure    string      `json:"measure"`
	Mode       string      `json:"mode"`
	Covariates []string    `json:"covariates,omitempty"`
	Params     []string    `json:"params"`
	Observed   *float64    `json:"observed"`
	Estimate   *float64    `json:"estimate"`
	Strata     []StratumV1 `json:"strata,omitempty"`
}

// ResultV1 is the summary of a probabilistic bias analysis run.
type ResultV1 struct {
	Schema           string         `json:"schema"`
	RunID            string         `json:"run_id,omitempty"`
	Dataset          string         `json:"dataset"`
	Measure          string         `json:"measure"`
	Mode             string         `json:"mode"`
	Covariates       []string       `json:"covariates,omitempty"`
	Params           []string       `json:"params"`
	Seed             uint64         `json:"seed"`
	Observed         *float64       `json:"observed"`
	PointEstimate    float64        `json:"point_estimate"`
	CILow            float64        `json:"ci_low"`
	CIHigh           float64        `json:"ci_high"`
	Level            float64        `json:"level"`
	Trials           int            `json:"n_trials"`
	TrialsUsed       int            `json:"n_trials_used"`
	TrialsExcluded   int            `json:"n_trials_excluded"`
	Exclusions       map[string]int `json:"exclusions"`
	ElapsedMillis    int64          `json:"elapsed_ms"`
	ExcludedFraction float64        `json:"excluded_fraction"`
}

// TrialV1 is one line of the per-trial JSONL stream.
type TrialV1 struct {
	Trial    int                `json:"trial"`
	Params   map[string]float64 `json:"params"`
	Observed *float64           `json:"observed"`
	Estimate *float64           `json:"estimate"`
	Kind     string             `json:"kind,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// SweepCellV1 is one grid point of a sweep.
type SweepCellV1 struct {
	Index    int                `json:"index"`
	Values   map[string]float64 `json:"values"`
	Estimate *float64           `json:"estimate"`
	Kind     string             `json:"kind,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// SweepV1 is the report of a parameter sweep.
type SweepV1 struct {
	Schema     string        `json:"schema"`
	RunID      string        `json:"run_id,omitempty"`
	Dataset    string        `json:"dataset"`
	Measure    string        `json:"measure"`
	Mode       string        `json:"mode"`
	Covariates []string      `json:"covariates,omitempty"`
	Params     []string      `json:"params"`
	Axes       []string      `json:"axes"`
	Cells      []SweepCellV1 `json:"cells"`
}

// RunV1 is one stored run as listed from the run database.
type RunV1 struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	CreatedAt  string         `json:"created_at"` // RFC 3339, UTC
	Dataset    string         `json:"dataset"`
	Measure    string         `json:"measure"`
	Seed       uint64         `json:"seed,omitempty"`
	Params     []string       `json:"params"`
	Observed   *float64       `json:"observed"`
	Point      *float64       `json:"point"`
	Low        *float64       `json:"low,omitempty"`
	High       *float64       `json:"high,omitempty"`
	Level      *float64       `json:"level,omitempty"`
	Used       int            `json:"n_trials_used,omitempty"`
	Excluded   int            `json:"n_trials_excluded,omitempty"`
	Exclusions map[string]int `json:"exclusions,omitempty"`
	Trials     []TrialV1      `json:"trials,omitempty"`
}
