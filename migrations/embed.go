// Package migrations embeds the goose SQL migrations for the submissions
// store so the cli binary carries its own schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

const Dir = "."
