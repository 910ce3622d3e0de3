package migrations

import "embed"

// FS contains embedded SQLite migrations for run storage.
//
//go:embed *.sql
var FS embed.FS
