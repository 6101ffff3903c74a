// Package db embeds the goose migrations so the binary can bring a fresh
// database up to date without shipping the SQL files separately.
package db

import "embed"

// Migrations holds one directory per SQL dialect: migrations/postgres and
// migrations/sqlite.
//
//go:embed migrations/*/*.sql
var Migrations embed.FS
