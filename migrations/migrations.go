// Package migrations embeds the remote store schema.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
