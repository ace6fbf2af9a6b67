package store

import "embed"

// Migrations holds the SQL schema for [PostgresStore] in golang-migrate
// layout (NNNNNN_name.up.sql / .down.sql).
//
//go:embed migrations/*.sql
var Migrations embed.FS
