package migrations

import "embed"

// FS contains embedded SQLite migrations for the block log.
//
//go:embed *.sql
var FS embed.FS
