// Package migrations embeds the journal's SQL migration files into the
// binary, so the service can migrate without the files on disk.
package migrations

import "embed"

// FS holds the migration files at its root; pass it to database.Migrate.
//
//go:embed *.sql
var FS embed.FS
