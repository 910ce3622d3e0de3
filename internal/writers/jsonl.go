// internal/writers/jsonl.go
package writers

import (
	"encoding/json"
	"io"

	"qba/internal/jsonlutil"
	"qba/internal/output"
	"qba/internal/pba"
)

// StartTrialJSONLWriter streams each pba.Trial as one JSON line (v1).
func StartTrialJSONLWriter(out io.Writer, bufSize int) (chan<- pba.Trial, <-chan error) {
	return jsonlutil.Start[pba.Trial](out, bufSize,
		func(enc *json.Encoder, t pba.Trial) error {
			return enc.Encode(output.ToAPITrial(t))
		},
		IsBrokenPipe,
	)
}

// WriteTrialsJSONL writes trials in index order and waits for the encoder.
func WriteTrialsJSONL(out io.Writer, trials []pba.Trial) error {
	in, done := StartTrialJSONLWriter(out, 0)
	for _, t := range trials {
		in <- t
	}
	close(in)
	return IgnoreBrokenPipe(<-done)
}
