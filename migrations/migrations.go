// Package migrations embeds the Postgres snapshot schema so binaries can
// migrate without the .sql files on disk.
package migrations

import "embed"

// FS holds the golang-migrate up/down files of this directory.
//
//go:embed *.sql
var FS embed.FS
