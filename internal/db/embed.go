package db

import "embed"

// EmbedMigrations holds the metastore schema migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
