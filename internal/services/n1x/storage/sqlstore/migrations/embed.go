// Package migrations embeds the room schema for each SQL dialect.
package migrations

import "embed"

// FS holds one directory of migrations per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
