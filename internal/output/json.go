// internal/output/json.go
package output

import (
	"io"

	"qba/internal/jsonutil"
	"qba/pkg/api"
)

// WriteAdjustJSON writes one adjustment report (pretty-indented).
func WriteAdjustJSON(w io.Writer, v api.AdjustV1) error {
	return jsonutil.EncodePretty(w, v)
}

// WriteResultJSON writes one PBA summary (pretty-indented).
func WriteResultJSON(w io.Writer, v api.ResultV1) error {
	return jsonutil.EncodePretty(w, v)
}

// WriteSweepJSON writes one sweep report (pretty-indented).
func WriteSweepJSON(w io.Writer, v api.SweepV1) error {
	return jsonutil.EncodePretty(w, v)
}

// WriteJSON writes any wire value (pretty-indented).
func WriteJSON(w io.Writer, v any) error {
	return jsonutil.EncodePretty(w, v)
}
