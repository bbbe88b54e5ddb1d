// Package migrations embeds the SQL schema migrations for each cache driver.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per database driver.
//
//go:embed sqlite3/*.sql postgres/*.sql
var FS embed.FS
