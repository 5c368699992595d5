// Package migrations embeds the SQL schema and seed files applied by cmd/migrate.
package migrations

import "embed"

// FS holds sql/*.sql (numbered up/down pairs) and seeds/*.sql.
//
//go:embed sql/*.sql seeds/*.sql
var FS embed.FS

const (
	Dir      = "sql"
	SeedsDir = "seeds"
)
