// internal/writers/registry.go
package writers

import (
	"fmt"
	"io"
	"sort"

	"qba/internal/output"
	"qba/pkg/api"
)

// Options tune the text renderers.
type Options struct {
	Header bool
}

// ReportWriter renders one report value (api.AdjustV1, api.ResultV1,
// api.SweepV1 or a list of api.RunV1) in a given format.
type ReportWriter func(w io.Writer, report any, opt Options) error

// ReportWriters maps a format name to its writer. Last registration wins.
var ReportWriters = map[string]ReportWriter{}

// Register adds or replaces the writer for format.
func Register(format string, fn ReportWriter) { ReportWriters[format] = fn }

// Formats lists registered formats in name order.
func Formats() []string {
	out := make([]string, 0, len(ReportWriters))
	for f := range ReportWriters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// WriteReport dispatches report to the writer registered for format.
// Broken pipes are not errors.
func WriteReport(format string, w io.Writer, report any, opt Options) error {
	fn, ok := ReportWriters[format]
	if !ok {
		return fmt.Errorf("unknown report format %q (no writer registered)", format)
	}
	return IgnoreBrokenPipe(fn(w, report, opt))
}

func init() {
	Register("text", func(w io.Writer, report any, opt Options) error {
		switch v := report.(type) {
		case api.AdjustV1:
			return output.WriteAdjustText(w, v)
		case api.ResultV1:
			return output.WriteResultText(w, v)
		case api.SweepV1:
			return output.WriteSweepText(w, v, opt.Header)
		case []api.RunV1:
			return output.WriteRunsText(w, v, opt.Header)
		default:
			return fmt.Errorf("text: unsupported report %T", report)
		}
	})
	Register("json", func(w io.Writer, report any, _ Options) error {
		switch v := report.(type) {
		case api.AdjustV1:
			return output.WriteAdjustJSON(w, v)
		case api.ResultV1:
			return output.WriteResultJSON(w, v)
		case api.SweepV1:
			return output.WriteSweepJSON(w, v)
		case []api.RunV1:
			return output.WriteRunsJSON(w, v)
		case api.RunV1:
			return output.WriteJSON(w, v)
		default:
			return fmt.Errorf("json: unsupported report %T", report)
		}
	})
}
