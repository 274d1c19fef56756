// Package migrations holds the SQL schema of the evaluation journal.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
