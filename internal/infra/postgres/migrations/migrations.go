package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

// Every NAME.up.sql has a NAME.down.sql that undoes it.
//
//go:embed *.sql
var sqlMigrations embed.FS

// Migrations holds every schema change, ordered by file name.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(sqlMigrations); err != nil {
		panic(err)
	}
}
