package migrations

import "embed"

// FS holds one migration set per SQL dialect, in the sqlite and postgres directories.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
