// Package writers turns analysis reports into serialized outputs.
//
// Design:
//   - Writers own format dispatch (text/JSON reports, JSONL trial streams).
//   - Engine and pba stay domain-only; app stays orchestration-only.
//   - JSON/JSONL go through pkg/api (v1) for a stable wire format.
package writers
