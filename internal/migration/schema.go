package migration

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/store/*.sql
var storeMigrations embed.FS

// EnsureSchema brings the configuration store's three descriptor tables up
// to date, the same goose.SetDialect/goose.Up pairing
// internal/database/migrations.go uses for the application's own schema.
// driver "postgres" selects the postgres dialect; any other value selects
// sqlite3.
func EnsureSchema(db *sql.DB, driver string) error {
	dialect := "sqlite3"
	if driver == "postgres" {
		dialect = "postgres"
	}

	goose.SetBaseFS(storeMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations/store")
}
