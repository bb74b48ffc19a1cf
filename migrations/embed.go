// Package migrations содержит SQL схему сервиса для goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
