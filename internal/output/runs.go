package output

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"qba/internal/storage"
	"qba/pkg/api"
)

// ToAPIRun converts a stored run and its trials (may be nil).
func ToAPIRun(r storage.Run, trials []storage.Trial) api.RunV1 {
	v := api.RunV1{
		ID:         r.ID,
		Command:    r.Command,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		Dataset:    r.Dataset,
		Measure:    r.Measure,
		Seed:       r.Seed,
		Params:     nonNil(r.Params),
		Observed:   Finite(r.Observed),
		Point:      Finite(r.Point),
		Low:        Finite(r.Low),
		High:       Finite(r.High),
		Level:      Finite(r.Level),
		Used:       r.Used,
		Excluded:   r.Excluded,
		Exclusions: r.Exclusions,
	}
	for _, t := range trials {
		tv := api.TrialV1{Trial: t.Index, Estimate: Finite(t.Estimate), Error: t.Error}
		v.Trials = append(v.Trials, tv)
	}
	return v
}

// RunsTSVHeader is the header row of WriteRunsText.
const RunsTSVHeader = "id\tcommand\tcreated_at\tdataset\tobserved\tpoint\tlow\thigh"

// WriteRunsText prints one TSV row per run, with an optional header.
func WriteRunsText(w io.Writer, runs []api.RunV1, header bool) error {
	bw := bufio.NewWriter(w)
	if header {
		fmt.Fprintln(bw, RunsTSVHeader)
	}
	for _, r := range runs {
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Command, r.CreatedAt, r.Dataset,
			formatPtr(r.Observed), formatPtr(r.Point), formatPtr(r.Low), formatPtr(r.High),
		)
	}
	return bw.Flush()
}

// WriteRunsJSON writes runs as one JSON array (pretty-indented).
func WriteRunsJSON(w io.Writer, runs []api.RunV1) error {
	return WriteJSON(w, runs)
}
