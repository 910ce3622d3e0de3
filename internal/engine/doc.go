// Package engine computes one bias-adjusted estimate from records and a
// resolved set of bias parameters. It never imports app, output, config, or
// pba; keep it domain-only.
//
// External outputs must not depend on the internal shape here; use pkg/api
// for stable wire types (JSON/JSONL v1).
package engine
