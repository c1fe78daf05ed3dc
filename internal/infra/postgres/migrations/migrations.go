package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change, registered by the files of this
// package in name order.
var Migrations = migrate.NewMigrations()
