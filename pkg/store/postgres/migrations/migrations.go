// Package migrations embeds the SQL migration files for the Postgres
// store so they ship inside the compiled binary, the way golang-migrate
// embeds its control-plane migrations.
package migrations

import "embed"

// FS holds the embedded migration SQL files.
//
//go:embed *.sql
var FS embed.FS
