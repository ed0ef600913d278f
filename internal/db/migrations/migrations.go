// Package migrations embeds the SQL migration set so cmd/migrate can apply
// it without depending on a filesystem path at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
